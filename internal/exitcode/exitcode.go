package exitcode

import (
	"errors"
	"os"

	perrors "github.com/felixgeelhaar/parity/internal/errors"
)

// Exit codes summarizing the worst verdict kind present in a run
const (
	// Success indicates every fixture was equivalent
	Success = 0

	// Failures indicates at least one divergent or transform-error verdict
	Failures = 1

	// InfrastructureError indicates an infrastructure error verdict or a
	// discovery failure
	InfrastructureError = 2

	// Interrupted indicates the run was cancelled by the operator
	Interrupted = 130
)

// Summary is the subset of a report needed to choose an exit code.
type Summary interface {
	FailureCount() int
	InfrastructureCount() int
}

// Error carries an exit code chosen by a command out to main. A nil Err
// means the command already reported its outcome.
type Error struct {
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return GetExitCodeDescription(e.Code)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Silent reports whether err only carries an exit code
func Silent(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Err == nil
}

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// DetermineExitCode maps a run-level error onto an exit code
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}

	switch perrors.CodeOf(err).Category() {
	case "RUN":
		return Interrupted
	case "DISCOVERY", "CONFIG", "IO":
		return InfrastructureError
	}

	// Anything else that escaped the harness is an infrastructure problem
	return InfrastructureError
}

// FromSummary returns the exit code for a completed run
func FromSummary(s Summary) int {
	switch {
	case s.InfrastructureCount() > 0:
		return InfrastructureError
	case s.FailureCount() > 0:
		return Failures
	default:
		return Success
	}
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "All fixtures equivalent"
	case Failures:
		return "Divergent or transform-error verdicts present"
	case InfrastructureError:
		return "Infrastructure error or discovery failure"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
