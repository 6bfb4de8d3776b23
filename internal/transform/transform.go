// Package transform invokes the transformer under test and compiles what it
// produces.
package transform

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Stage selects what the transformer consumes
type Stage string

const (
	// StageSource hands the transformer fixture source and expects source
	// back
	StageSource Stage = "source"
	// StageArtifact hands the transformer the compiled original output
	// directory and expects a rewritten output directory back
	StageArtifact Stage = "artifact"
)

// Input is one transformation request
type Input struct {
	FixtureID string
	// FileName is the fixture's base name, e.g. JumpInit.java
	FileName string
	Source   string
	// ArtifactDir holds the compiled original for artifact-stage transforms
	ArtifactDir string
	// OutDir receives artifact-stage output
	OutDir string
}

// Transformer is the transformation pipeline under test
type Transformer interface {
	Name() string
	// Transform returns the transformed source. For artifact-stage inputs
	// the output is written to in.OutDir and the returned string is ignored.
	// A *Diagnostic error means the transformer rejected the input.
	Transform(ctx context.Context, in Input) (string, error)
}

// Diagnostic describes a transformer or compiler rejecting its input
type Diagnostic struct {
	Message  string
	Output   string // Raw tool output
	ExitCode int
	TimedOut bool
}

func (d *Diagnostic) Error() string {
	if d.Output == "" {
		return d.Message
	}
	return fmt.Sprintf("%s: %s", d.Message, d.Output)
}

// Text renders the diagnostic for reports
func (d *Diagnostic) Text() string {
	if d.Output == "" {
		return d.Message
	}
	return d.Message + "\n" + d.Output
}

// Identity returns its input unchanged
type Identity struct{}

func (Identity) Name() string { return "identity" }

func (Identity) Transform(_ context.Context, in Input) (string, error) {
	if in.ArtifactDir != "" {
		if err := os.CopyFS(in.OutDir, os.DirFS(in.ArtifactDir)); err != nil {
			return "", fmt.Errorf("copy artifacts: %w", err)
		}
		return "", nil
	}
	return in.Source, nil
}

// Func adapts an in-process function to Transformer. Errors that are not
// already diagnostics are reported as transformer failures.
type Func struct {
	Label string
	Fn    func(ctx context.Context, in Input) (string, error)
}

func (f Func) Name() string {
	if f.Label == "" {
		return "func"
	}
	return f.Label
}

func (f Func) Transform(ctx context.Context, in Input) (string, error) {
	out, err := f.Fn(ctx, in)
	if err == nil {
		return out, nil
	}
	var diag *Diagnostic
	if errors.As(err, &diag) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "", err
	}
	return "", &Diagnostic{Message: "transformer failed", Output: err.Error()}
}
