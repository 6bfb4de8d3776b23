package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for a parity run. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Verdict metrics
	Fixtures *prometheus.CounterVec

	// Sandbox metrics
	Executions        *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec

	// Transformer metrics
	TransformDuration *prometheus.HistogramVec

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Fixtures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parity_fixtures_total",
				Help: "Total number of fixtures evaluated, by verdict",
			},
			[]string{"verdict"},
		),

		Executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parity_executions_total",
				Help: "Total number of sandboxed program runs",
			},
			[]string{"side", "outcome"},
		),
		ExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parity_execution_duration_seconds",
				Help:    "Sandboxed program run duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"side"},
		),

		TransformDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parity_transform_duration_seconds",
				Help:    "Transformer invocation duration in seconds",
				Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"outcome"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parity_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"error_code"},
		),
	}
}

// RecordVerdict counts one fixture verdict
func (m *Metrics) RecordVerdict(kind string) {
	if m == nil {
		return
	}
	m.Fixtures.WithLabelValues(kind).Inc()
}

// RecordExecution counts one program run. side is original or transformed;
// outcome is completed, timeout or error.
func (m *Metrics) RecordExecution(side, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Executions.WithLabelValues(side, outcome).Inc()
	if d > 0 {
		m.ExecutionDuration.WithLabelValues(side).Observe(d.Seconds())
	}
}

// RecordTransform observes one transformer invocation
func (m *Metrics) RecordTransform(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.TransformDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordError counts an error by its structured code
func (m *Metrics) RecordError(code string) {
	if m == nil || code == "" {
		return
	}
	m.Errors.WithLabelValues(code).Inc()
}
