package transform

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"github.com/felixgeelhaar/parity/internal/errors"
	"github.com/felixgeelhaar/parity/internal/fixture"
	"github.com/felixgeelhaar/parity/internal/toolchain"
)

const (
	// DefaultTimeout bounds one transformer invocation. It is independent
	// of the execution timeout.
	DefaultTimeout = 30 * time.Second

	// abandonGrace is how long a transformer may overrun its deadline
	// before the invoker stops waiting for it
	abandonGrace = 5 * time.Second
)

// Kind classifies a transformation outcome
type Kind string

const (
	KindSuccess          Kind = "success"
	KindCompileFailure   Kind = "compile_failure"
	KindTransformFailure Kind = "transform_failure"
)

// Outcome is the result of transforming and compiling one fixture
type Outcome struct {
	Kind Kind
	// Source is the transformed text (source stage only)
	Source string
	// Diagnostic is the raw transformer or compiler output on failure
	Diagnostic string
	// Duration covers the transformer call, not the compilation
	Duration time.Duration
	// Executable is the compiled transformed program on success. The caller
	// owns it and must call Cleanup.
	Executable *toolchain.Executable
}

// OK reports whether the transformed program is ready to run
func (o Outcome) OK() bool {
	return o.Kind == KindSuccess
}

// Invoker runs the transformer under test and compiles its output with the
// same toolchain used for originals
type Invoker struct {
	Transformer Transformer
	Toolchain   toolchain.Toolchain
	Timeout     time.Duration
	Stage       Stage
}

// Transform produces the transformed program for unit. original is the
// compiled original and is required for the artifact stage.
//
// Rejections by the transformer or the compiler are reported in the
// Outcome. The error return is reserved for cancellation and for failures
// of the harness itself, such as a transformer binary that cannot be
// started.
func (inv *Invoker) Transform(ctx context.Context, unit *fixture.Unit, original *toolchain.Executable) (Outcome, error) {
	if inv.Stage == StageArtifact {
		return inv.transformArtifact(ctx, unit, original)
	}

	in := Input{FixtureID: unit.ID, FileName: unit.FileName(), Source: unit.Source}
	start := time.Now()
	src, err := inv.run(ctx, in)
	elapsed := time.Since(start)
	if err != nil {
		return inv.failure(ctx, err, elapsed)
	}

	exe, err := inv.Toolchain.Compile(ctx, toolchain.Source{FileName: in.FileName, Text: src})
	if err != nil {
		var ce *toolchain.CompileError
		if stderrors.As(err, &ce) {
			return Outcome{
				Kind:       KindCompileFailure,
				Source:     src,
				Diagnostic: compileDiagnostic(ce),
				Duration:   elapsed,
			}, nil
		}
		return Outcome{}, err
	}

	return Outcome{Kind: KindSuccess, Source: src, Duration: elapsed, Executable: exe}, nil
}

func (inv *Invoker) transformArtifact(ctx context.Context, unit *fixture.Unit, original *toolchain.Executable) (Outcome, error) {
	if original == nil {
		return Outcome{}, errors.New(errors.ErrCodeTransformFailed, "artifact stage requires a compiled original")
	}

	// Kept inside the original's build directory so a container mounting
	// that directory also sees the rewritten artifacts.
	outDir, err := os.MkdirTemp(original.Dir, "artifact-*")
	if err != nil {
		return Outcome{}, errors.Wrap(errors.ErrCodeCompileWorkdir, "create artifact directory", err)
	}

	in := Input{
		FixtureID:   unit.ID,
		FileName:    unit.FileName(),
		Source:      unit.Source,
		ArtifactDir: original.OutDir,
		OutDir:      outDir,
	}
	start := time.Now()
	_, err = inv.run(ctx, in)
	elapsed := time.Since(start)
	if err != nil {
		_ = os.RemoveAll(outDir)
		return inv.failure(ctx, err, elapsed)
	}

	return Outcome{Kind: KindSuccess, Duration: elapsed, Executable: original.WithOutDir(outDir)}, nil
}

// run calls the transformer under the invoker timeout. A transformer that
// ignores its context is abandoned shortly after the deadline.
func (inv *Invoker) run(ctx context.Context, in Input) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, inv.timeout())
	defer cancel()

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := inv.Transformer.Transform(tctx, in)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-tctx.Done():
	}

	select {
	case r := <-done:
		return r.out, r.err
	case <-time.After(abandonGrace):
		return "", tctx.Err()
	}
}

// failure turns a transformer error into an outcome, or passes it through
// when the harness itself failed
func (inv *Invoker) failure(ctx context.Context, err error, elapsed time.Duration) (Outcome, error) {
	if ctx.Err() != nil {
		return Outcome{}, errors.Wrap(errors.ErrCodeRunCancelled, "transform cancelled", ctx.Err())
	}

	var diag *Diagnostic
	switch {
	case stderrors.As(err, &diag):
		return Outcome{Kind: KindTransformFailure, Diagnostic: diag.Text(), Duration: elapsed}, nil
	case stderrors.Is(err, context.DeadlineExceeded):
		return Outcome{
			Kind:       KindTransformFailure,
			Diagnostic: fmt.Sprintf("[%s] transformer timed out after %s", errors.ErrCodeTransformTimeout, inv.timeout()),
			Duration:   elapsed,
		}, nil
	}
	return Outcome{}, err
}

func (inv *Invoker) timeout() time.Duration {
	if inv.Timeout > 0 {
		return inv.Timeout
	}
	return DefaultTimeout
}

func compileDiagnostic(ce *toolchain.CompileError) string {
	header := fmt.Sprintf("[%s] %s", errors.ErrCodeCompileFailed, ce.Error())
	if ce.Diagnostics == "" {
		return header
	}
	return header + "\n" + ce.Diagnostics
}
