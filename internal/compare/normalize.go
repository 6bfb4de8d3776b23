package compare

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/felixgeelhaar/parity/internal/errors"
)

// Normalizer rewrites output before comparison
type Normalizer interface {
	Name() string
	Normalize(content []byte) []byte
}

// Normalization modes
const (
	ModeNone     = "none"
	ModeVolatile = "volatile"
)

// Rule is a user-supplied rewrite applied to both outputs
type Rule struct {
	Pattern string `yaml:"pattern"`
	Replace string `yaml:"replace"`
}

// Raw performs no normalization; outputs must match byte for byte
type Raw struct{}

func (Raw) Name() string { return ModeNone }

func (Raw) Normalize(content []byte) []byte { return content }

// RegexNormalizer applies a list of pattern replacements in order
type RegexNormalizer struct {
	name     string
	patterns []normPattern
}

type normPattern struct {
	regex       *regexp.Regexp
	replacement []byte
}

func (n *RegexNormalizer) Name() string { return n.name }

// Normalize converts CRLF to LF, then applies every pattern
func (n *RegexNormalizer) Normalize(content []byte) []byte {
	result := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	for _, p := range n.patterns {
		result = p.regex.ReplaceAll(result, p.replacement)
	}
	return result
}

// NewVolatileNormalizer masks values that legitimately differ between two
// runs of the same JVM program.
func NewVolatileNormalizer() *RegexNormalizer {
	return &RegexNormalizer{
		name: ModeVolatile,
		patterns: []normPattern{
			// ISO 8601 timestamps: 2024-12-13T10:30:45Z, 2024-12-13T10:30:45.123+01:00
			{regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?`), []byte("<TIMESTAMP>")},
			// Log timestamps: 2024-12-13 10:30:45, 2024/12/13 10:30:45
			{regexp.MustCompile(`\d{4}[-/]\d{2}[-/]\d{2}\s+\d{2}:\d{2}:\d{2}(\.\d+)?`), []byte("<TIMESTAMP>")},
			// Epoch millis and seconds
			{regexp.MustCompile(`\b1[0-9]{9,12}\b`), []byte("<UNIX_TS>")},
			// Default Object.toString: java.lang.Object@1b6d3586
			{regexp.MustCompile(`([A-Za-z_$][\w$.]*)@[0-9a-f]{4,8}\b`), []byte("$1@<HASH>")},
			// Memory addresses
			{regexp.MustCompile(`0x[0-9a-fA-F]{8,16}`), []byte("<ADDR>")},
			// Durations: took 1.234s, 123ms, 1.5 seconds
			{regexp.MustCompile(`\b\d+(\.\d+)?\s*(ns|µs|us|ms|s|seconds?|minutes?)\b`), []byte("<DURATION>")},
			// Process IDs: pid 12345, PID: 12345
			{regexp.MustCompile(`\b[Pp][Ii][Dd][:\s]*\d+\b`), []byte("pid <PID>")},
		},
	}
}

// NewRuleNormalizer compiles user rules
func NewRuleNormalizer(rules []Rule) (*RegexNormalizer, error) {
	n := &RegexNormalizer{name: "rules"}
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, errors.NewConfigInvalidError(fmt.Sprintf("normalize rule %d: %v", i+1, err))
		}
		n.patterns = append(n.patterns, normPattern{re, []byte(r.Replace)})
	}
	return n, nil
}

// Chain applies normalizers in order
type Chain []Normalizer

func (c Chain) Name() string {
	if len(c) == 0 {
		return ModeNone
	}
	name := c[0].Name()
	for _, n := range c[1:] {
		name += "+" + n.Name()
	}
	return name
}

func (c Chain) Normalize(content []byte) []byte {
	for _, n := range c {
		content = n.Normalize(content)
	}
	return content
}

// NewNormalizer builds the normalizer for a mode plus optional user rules
func NewNormalizer(mode string, rules []Rule) (Normalizer, error) {
	var chain Chain
	switch mode {
	case "", ModeNone:
	case ModeVolatile:
		chain = append(chain, NewVolatileNormalizer())
	default:
		return nil, errors.NewConfigInvalidError(fmt.Sprintf("unknown normalization %q (supported: none, volatile)", mode))
	}

	if len(rules) > 0 {
		rn, err := NewRuleNormalizer(rules)
		if err != nil {
			return nil, err
		}
		chain = append(chain, rn)
	}

	switch len(chain) {
	case 0:
		return Raw{}, nil
	case 1:
		return chain[0], nil
	}
	return chain, nil
}
