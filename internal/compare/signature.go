package compare

import (
	"regexp"
	"slices"
)

var exceptionName = regexp.MustCompile(`\b(?:[a-z_$][\w$]*\.)*(?:[A-Z][\w$]*)?(?:Exception|Error|Throwable)\b`)

// ExceptionSignature extracts the sorted set of exception type names from
// stderr. Messages, stack frames and line numbers are ignored.
func ExceptionSignature(stderr []byte) []string {
	matches := exceptionName.FindAll(stderr, -1)
	if len(matches) == 0 {
		return nil
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, string(m))
	}
	slices.Sort(names)
	return slices.Compact(names)
}
