// Package health runs preflight checks on the collaborators a run depends
// on: toolchain and transformer binaries, the docker daemon and the fixture
// roots.
package health

import (
	"context"
	"time"
)

// Checker verifies one dependency
type Checker interface {
	// Name is lowercase with hyphens, e.g. "compiler-binary"
	Name() string
	// Check must respect the context deadline
	Check(ctx context.Context) *Result
}

// Status is the outcome of a check
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) String() string {
	return string(s)
}

// rank orders statuses from best to worst
func (s Status) rank() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Result is the outcome of one check
type Result struct {
	Status  Status            `json:"status"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Latency time.Duration     `json:"latency_ns"`
}

// NewResult creates a result with the given status and message
func NewResult(status Status, message string) *Result {
	return &Result{
		Status:  status,
		Message: message,
		Details: make(map[string]string),
	}
}

// WithDetail adds a detail and returns r for chaining
func (r *Result) WithDetail(key, value string) *Result {
	r.Details[key] = value
	return r
}

func Healthy(message string) *Result   { return NewResult(StatusHealthy, message) }
func Degraded(message string) *Result  { return NewResult(StatusDegraded, message) }
func Unhealthy(message string) *Result { return NewResult(StatusUnhealthy, message) }
