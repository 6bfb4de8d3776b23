package compare

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Diff renders a unified line diff of original against transformed output,
// keeping at most maxLines lines
func Diff(original, transformed []byte, maxLines int) string {
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(original)),
		B:        difflib.SplitLines(string(transformed)),
		FromFile: "original",
		ToFile:   "transformed",
		Context:  2,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return fmt.Sprintf("diff unavailable: %v", err)
	}

	lines := strings.SplitAfter(strings.TrimRight(text, "\n"), "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return text
	}
	return strings.Join(lines[:maxLines], "") + fmt.Sprintf("\n... %d more diff lines", len(lines)-maxLines)
}
