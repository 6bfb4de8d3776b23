// Package report collects per-fixture verdicts into a run report and renders
// it.
package report

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/parity/internal/compare"
	"github.com/felixgeelhaar/parity/internal/errors"
	"github.com/felixgeelhaar/parity/internal/sandbox"
	"github.com/felixgeelhaar/parity/internal/transform"
)

// Kind is the classification of one fixture
type Kind string

const (
	KindEquivalent           Kind = "equivalent"
	KindEquivalentWithCaveat Kind = "equivalent_with_caveat"
	KindDivergent            Kind = "divergent"
	KindTransformError       Kind = "transform_error"
	KindInfrastructureError  Kind = "infrastructure_error"
)

// Kinds lists every verdict kind in presentation order
var Kinds = []Kind{
	KindEquivalent,
	KindEquivalentWithCaveat,
	KindDivergent,
	KindTransformError,
	KindInfrastructureError,
}

// Passed reports whether the kind counts as a pass
func (k Kind) Passed() bool {
	return k == KindEquivalent || k == KindEquivalentWithCaveat
}

// Execution summarizes one program run for the report
type Execution struct {
	ExitCode    int    `json:"exit_code" yaml:"exit_code"`
	DurationMS  int64  `json:"duration_ms" yaml:"duration_ms"`
	TimedOut    bool   `json:"timed_out,omitempty" yaml:"timed_out,omitempty"`
	Truncated   bool   `json:"truncated,omitempty" yaml:"truncated,omitempty"`
	Signal      string `json:"signal,omitempty" yaml:"signal,omitempty"`
	StdoutBytes int    `json:"stdout_bytes" yaml:"stdout_bytes"`
	StdoutHash  string `json:"stdout_blake3" yaml:"stdout_blake3"`
	// Stderr is the tail of the error stream, kept for divergent verdicts
	Stderr             string   `json:"stderr,omitempty" yaml:"stderr,omitempty"`
	ExceptionSignature []string `json:"exception_signature,omitempty" yaml:"exception_signature,omitempty"`
}

// StderrTailLimit bounds the stderr kept per execution in the report
const StderrTailLimit = 4 << 10

// Summarize builds the report view of a run
func Summarize(res *sandbox.Result) *Execution {
	if res == nil {
		return nil
	}
	return &Execution{
		ExitCode:    res.ExitCode,
		DurationMS:  res.Duration.Milliseconds(),
		TimedOut:    res.TimedOut,
		Truncated:   res.Truncated(),
		Signal:      res.Signal,
		StdoutBytes: len(res.Stdout),
		StdoutHash:  sandbox.HashBytes(res.Stdout),
	}
}

// Detail is Summarize plus the stderr tail and exception signature
func Detail(res *sandbox.Result) *Execution {
	e := Summarize(res)
	if e == nil {
		return nil
	}
	e.Stderr = stderrTail(res.Stderr, StderrTailLimit)
	e.ExceptionSignature = compare.ExceptionSignature(res.Stderr)
	return e
}

func stderrTail(stderr []byte, limit int) string {
	if len(stderr) <= limit {
		return strings.ToValidUTF8(string(stderr), "\uFFFD")
	}
	omitted := len(stderr) - limit
	tail := strings.ToValidUTF8(string(stderr[omitted:]), "\uFFFD")
	return fmt.Sprintf("[... %d bytes omitted]\n%s", omitted, tail)
}

// Verdict is the classification of one fixture with its evidence
type Verdict struct {
	Kind        Kind       `json:"kind" yaml:"kind"`
	Reason      string     `json:"reason,omitempty" yaml:"reason,omitempty"`
	Original    *Execution `json:"original,omitempty" yaml:"original,omitempty"`
	Transformed *Execution `json:"transformed,omitempty" yaml:"transformed,omitempty"`
	// Diff is a unified stdout diff for divergent verdicts
	Diff string `json:"diff,omitempty" yaml:"diff,omitempty"`
	// Outcome is the transform outcome kind for transform errors
	Outcome    transform.Kind `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Diagnostic string         `json:"diagnostic,omitempty" yaml:"diagnostic,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty" yaml:"error_code,omitempty"`
}

// FromDecision turns a comparator decision into a verdict
func FromDecision(d compare.Decision, original, transformed *sandbox.Result) Verdict {
	kind := KindEquivalent
	switch d.Kind {
	case compare.EquivalentWithCaveat:
		kind = KindEquivalentWithCaveat
	case compare.Divergent:
		kind = KindDivergent
	}
	summarize := Summarize
	if kind == KindDivergent {
		summarize = Detail
	}
	return Verdict{
		Kind:        kind,
		Reason:      d.Reason,
		Original:    summarize(original),
		Transformed: summarize(transformed),
		Diff:        d.Diff,
	}
}

// Divergence builds a divergent verdict with a reason
func Divergence(reason string, original *sandbox.Result) Verdict {
	return Verdict{Kind: KindDivergent, Reason: reason, Original: Detail(original)}
}

// TransformError builds a verdict for a failed transformation
func TransformError(o transform.Outcome) Verdict {
	reason := "transformer failed"
	if o.Kind == transform.KindCompileFailure {
		reason = "transformed program does not compile"
	}
	return Verdict{
		Kind:       KindTransformError,
		Reason:     reason,
		Outcome:    o.Kind,
		Diagnostic: o.Diagnostic,
	}
}

// InfrastructureError builds a verdict for a harness-side failure
func InfrastructureError(err error) Verdict {
	v := Verdict{Kind: KindInfrastructureError, Reason: err.Error()}
	if code := errors.CodeOf(err); code != "" {
		v.ErrorCode = string(code)
	}
	return v
}

// Skipped builds the verdict for a fixture excluded by its manifest. It is
// reported as a caveat so the fixture is still accounted for.
func Skipped(reason string) Verdict {
	return Verdict{Kind: KindEquivalentWithCaveat, Reason: "skipped: " + reason}
}
