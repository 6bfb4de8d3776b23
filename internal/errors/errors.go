package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Discovery errors abort the whole run (DISCOVERY-001 to DISCOVERY-099)
	ErrCodeRootNotFound   ErrorCode = "DISCOVERY-001"
	ErrCodeRootUnreadable ErrorCode = "DISCOVERY-002"
	ErrCodeNoFixtures     ErrorCode = "DISCOVERY-003"

	// Fixture errors are recorded per fixture (FIXTURE-001 to FIXTURE-099)
	ErrCodeFixtureRead     ErrorCode = "FIXTURE-001"
	ErrCodeFixtureManifest ErrorCode = "FIXTURE-002"

	// Execution errors (EXEC-001 to EXEC-099)
	ErrCodeExecSpawn              ErrorCode = "EXEC-001"
	ErrCodeExecTimeout            ErrorCode = "EXEC-002"
	ErrCodeExecCancelled          ErrorCode = "EXEC-003"
	ErrCodeExecDockerNotAvailable ErrorCode = "EXEC-004"
	ErrCodeExecImageDenied        ErrorCode = "EXEC-005"

	// Toolchain errors (COMPILE-001 to COMPILE-099)
	ErrCodeCompileFailed   ErrorCode = "COMPILE-001"
	ErrCodeCompileWorkdir  ErrorCode = "COMPILE-002"
	ErrCodeOriginalCompile ErrorCode = "COMPILE-003"

	// Transformer errors (TRANSFORM-001 to TRANSFORM-099)
	ErrCodeTransformFailed  ErrorCode = "TRANSFORM-001"
	ErrCodeTransformTimeout ErrorCode = "TRANSFORM-002"

	// Report errors (REPORT-001 to REPORT-099)
	ErrCodeReportClosed    ErrorCode = "REPORT-001"
	ErrCodeReportDuplicate ErrorCode = "REPORT-002"

	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigInvalid  ErrorCode = "CONFIG-001"
	ErrCodeConfigNotFound ErrorCode = "CONFIG-002"

	// Run errors (RUN-001 to RUN-099)
	ErrCodeRunCancelled ErrorCode = "RUN-001"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileReadFailed  ErrorCode = "IO-001"
	ErrCodeFileWriteFailed ErrorCode = "IO-002"
	ErrCodeFileUnmarshal   ErrorCode = "IO-003"
)

// HarnessError represents an error with code, suggestions, and documentation
type HarnessError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *HarnessError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *HarnessError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a HarnessError with the same code.
// This lets sentinel values such as ErrReportClosed match wrapped instances.
func (e *HarnessError) Is(target error) bool {
	t, ok := target.(*HarnessError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Category returns the code family, e.g. "DISCOVERY" for DISCOVERY-001.
func (c ErrorCode) Category() string {
	s := string(c)
	if i := strings.IndexByte(s, '-'); i > 0 {
		return s[:i]
	}
	return s
}

// New creates a new HarnessError
func New(code ErrorCode, message string) *HarnessError {
	return &HarnessError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new HarnessError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *HarnessError {
	return &HarnessError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *HarnessError) WithSuggestion(suggestion string) *HarnessError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *HarnessError) WithSuggestions(suggestions ...string) *HarnessError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *HarnessError) WithDocs(url string) *HarnessError {
	e.DocsURL = url
	return e
}

// CodeOf returns the code of the first HarnessError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var he *HarnessError
	if stderrors.As(err, &he) {
		return he.Code
	}
	return ""
}

// IsDiscovery reports whether err is a discovery-time error.
func IsDiscovery(err error) bool {
	return CodeOf(err).Category() == "DISCOVERY"
}

// Sentinels for errors.Is comparisons.
var (
	ErrReportClosed = New(ErrCodeReportClosed, "report is closed")
	ErrCancelled    = New(ErrCodeRunCancelled, "run cancelled")
	ErrNoFixtures   = New(ErrCodeNoFixtures, "no fixtures found")
)

// Common error constructors

// NewRootNotFoundError creates a discovery error for a missing fixture root
func NewRootNotFoundError(root string, cause error) *HarnessError {
	return Wrap(ErrCodeRootNotFound, fmt.Sprintf("fixture root not found: %s", root), cause).
		WithSuggestion("Check the paths passed to --roots").
		WithSuggestion("Paths are resolved relative to the current working directory")
}

// NewRootUnreadableError creates a discovery error for a root that cannot be listed
func NewRootUnreadableError(root string, cause error) *HarnessError {
	return Wrap(ErrCodeRootUnreadable, fmt.Sprintf("fixture root is not a readable directory: %s", root), cause).
		WithSuggestion("Verify the directory exists and you have read permissions")
}

// NewNoFixturesError creates a discovery error for an empty fixture set
func NewNoFixturesError(roots []string, exts []string) *HarnessError {
	return New(ErrCodeNoFixtures, fmt.Sprintf("no fixtures found under %s", strings.Join(roots, ", "))).
		WithSuggestion(fmt.Sprintf("Fixture files must use one of the extensions: %s", strings.Join(exts, ", ")))
}

// NewSpawnError creates an execution error for a process that could not start
func NewSpawnError(path string, cause error) *HarnessError {
	return Wrap(ErrCodeExecSpawn, fmt.Sprintf("failed to start %s", path), cause).
		WithSuggestion("Check that the toolchain binaries are installed and on PATH")
}

// NewExecDockerNotAvailableError creates a Docker not available error
func NewExecDockerNotAvailableError(cause error) *HarnessError {
	return Wrap(ErrCodeExecDockerNotAvailable, "Docker is not available", cause).
		WithSuggestion("Install Docker Engine or use --isolation process").
		WithSuggestion("Run 'docker version' to verify Docker installation").
		WithDocs("https://docs.docker.com/get-docker/")
}

// NewReportClosedError creates an error for a record after finalize
func NewReportClosedError(fixtureID string) *HarnessError {
	return Wrap(ErrCodeReportClosed, fmt.Sprintf("cannot record verdict for %s", fixtureID), ErrReportClosed)
}

// NewConfigInvalidError creates a configuration validation error
func NewConfigInvalidError(details string) *HarnessError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", details)).
		WithSuggestion("Run 'parity run --help' to see accepted values")
}

// NewFileUnmarshalError creates an unmarshal error
func NewFileUnmarshalError(path string, format string, cause error) *HarnessError {
	return Wrap(ErrCodeFileUnmarshal, fmt.Sprintf("failed to parse %s file: %s", format, path), cause).
		WithSuggestion("Check the file syntax and format").
		WithSuggestion(fmt.Sprintf("Ensure the file is valid %s", format))
}
