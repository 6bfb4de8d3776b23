package health

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds each check
const DefaultTimeout = 5 * time.Second

// Check pairs a checker name with its result
type Check struct {
	Name   string  `json:"name"`
	Result *Result `json:"result"`
}

// Manager runs checkers in parallel, each under its own timeout
type Manager struct {
	checkers []Checker
	timeout  time.Duration
}

// NewManager creates a manager with DefaultTimeout
func NewManager(checkers ...Checker) *Manager {
	return &Manager{checkers: checkers, timeout: DefaultTimeout}
}

// WithTimeout sets the per-check timeout
func (m *Manager) WithTimeout(timeout time.Duration) *Manager {
	m.timeout = timeout
	return m
}

// Add registers a checker
func (m *Manager) Add(c Checker) {
	m.checkers = append(m.checkers, c)
}

// Run executes every checker and returns the results in registration order
func (m *Manager) Run(ctx context.Context) []Check {
	checks := make([]Check, len(m.checkers))

	var g errgroup.Group
	for i, c := range m.checkers {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()

			start := time.Now()
			res := c.Check(checkCtx)
			if res == nil {
				res = Unhealthy("check returned no result")
			}
			if res.Latency == 0 {
				res.Latency = time.Since(start)
			}
			checks[i] = Check{Name: c.Name(), Result: res}
			return nil
		})
	}
	_ = g.Wait()

	return checks
}

// Overall returns the worst status among checks; healthy when empty
func Overall(checks []Check) Status {
	worst := StatusHealthy
	for _, c := range checks {
		if c.Result.Status.rank() > worst.rank() {
			worst = c.Result.Status
		}
	}
	return worst
}
