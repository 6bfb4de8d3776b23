// Package compare decides whether two executions of a program are
// observably equivalent.
package compare

import (
	"fmt"
	"slices"
	"strings"

	"github.com/felixgeelhaar/parity/internal/sandbox"
)

// Kind is the comparison outcome
type Kind string

const (
	Equivalent           Kind = "equivalent"
	EquivalentWithCaveat Kind = "equivalent_with_caveat"
	Divergent            Kind = "divergent"
)

// DefaultMaxDiffLines caps the stdout diff attached to a decision
const DefaultMaxDiffLines = 40

// Decision is the result of comparing an original run with a transformed run
type Decision struct {
	Kind   Kind
	Reason string
	// Diff is a unified stdout diff, empty when stdout matched
	Diff string
}

// Comparator compares execution results. The zero value compares strictly.
type Comparator struct {
	Normalizer   Normalizer
	MaxDiffLines int
}

// Compare applies, in order: timeout symmetry, exit code, normalized stdout
// and stderr exception signature. It is symmetric in its arguments apart
// from the wording of reasons.
func (c *Comparator) Compare(original, transformed *sandbox.Result) Decision {
	switch {
	case original.TimedOut && transformed.TimedOut:
		return Decision{Kind: EquivalentWithCaveat, Reason: "both runs timed out"}
	case original.TimedOut:
		return Decision{Kind: Divergent, Reason: "timeout mismatch: original timed out, transformed completed"}
	case transformed.TimedOut:
		return Decision{Kind: Divergent, Reason: "timeout mismatch: transformed timed out, original completed"}
	}

	origOut := c.normalizer().Normalize(original.Stdout)
	transOut := c.normalizer().Normalize(transformed.Stdout)
	stdoutEqual := string(origOut) == string(transOut)

	if original.ExitCode != transformed.ExitCode {
		d := Decision{
			Kind:   Divergent,
			Reason: fmt.Sprintf("exit code mismatch: original %d, transformed %d", original.ExitCode, transformed.ExitCode),
		}
		if !stdoutEqual {
			d.Diff = c.diff(origOut, transOut)
		}
		return d
	}

	if !stdoutEqual {
		return Decision{
			Kind:   Divergent,
			Reason: "stdout mismatch",
			Diff:   c.diff(origOut, transOut),
		}
	}

	origSig := ExceptionSignature(original.Stderr)
	transSig := ExceptionSignature(transformed.Stderr)
	if !slices.Equal(origSig, transSig) {
		return Decision{
			Kind: Divergent,
			Reason: fmt.Sprintf("stderr exception mismatch: original [%s], transformed [%s]",
				strings.Join(origSig, ", "), strings.Join(transSig, ", ")),
		}
	}

	if original.Truncated() || transformed.Truncated() {
		return Decision{Kind: EquivalentWithCaveat, Reason: "output truncated; compared captured prefix only"}
	}

	return Decision{Kind: Equivalent}
}

// Agree checks that repeated runs of the same program behave identically.
// A disagreement marks the program as nondeterministic.
func (c *Comparator) Agree(runs []*sandbox.Result) Decision {
	for i := 1; i < len(runs); i++ {
		d := c.Compare(runs[0], runs[i])
		if d.Kind == Divergent {
			return Decision{
				Kind:   Divergent,
				Reason: fmt.Sprintf("nondeterministic original: run 1 and run %d disagree (%s)", i+1, d.Reason),
				Diff:   d.Diff,
			}
		}
	}
	return Decision{Kind: Equivalent}
}

func (c *Comparator) normalizer() Normalizer {
	if c.Normalizer == nil {
		return Raw{}
	}
	return c.Normalizer
}

func (c *Comparator) diff(a, b []byte) string {
	limit := c.MaxDiffLines
	if limit <= 0 {
		limit = DefaultMaxDiffLines
	}
	return Diff(a, b, limit)
}
