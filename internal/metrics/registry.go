package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/felixgeelhaar/parity/internal/errors"
)

// NewRegistry creates a new Prometheus registry with metrics
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	return reg, m
}

// WriteFile writes the text exposition of every metric in reg to path, for
// collection by a node exporter textfile collector
func WriteFile(reg prometheus.Gatherer, path string) error {
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "write metrics file", err)
	}
	return nil
}
