// Package telemetry holds groom's run metrics and trace export.
//
// groom is a short-lived CLI, so metrics are not served over HTTP: they are
// collected on a private registry and written once at exit in the node
// exporter textfile format. Traces go to a file through the stdout exporter.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records cache and tool activity for one run. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	registry    *prometheus.Registry
	lookups     *prometheus.CounterVec
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	written     *prometheus.CounterVec
}

// NewMetrics creates the run's collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "groom_cache_lookups_total",
			Help: "Cache lookups by tool and result (hit|miss).",
		}, []string{"tool", "result"}),
		invocations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "groom_tool_invocations_total",
			Help: "Tool processes spawned by tool and outcome (ok|error).",
		}, []string{"tool", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "groom_tool_duration_seconds",
			Help:    "Wall time of tool processes.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"tool"}),
		written: f.NewCounterVec(prometheus.CounterOpts{
			Name: "groom_files_written_total",
			Help: "Files rewritten in place by formatters.",
		}, []string{"tool"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// CacheLookup counts one lookup.
func (m *Metrics) CacheLookup(tool string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.WithLabelValues(tool, result).Inc()
}

// ObserveRun records one finished tool process.
func (m *Metrics) ObserveRun(tool string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.invocations.WithLabelValues(tool, outcome).Inc()
	m.duration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// FileWritten counts one in-place rewrite.
func (m *Metrics) FileWritten(tool string) {
	if m == nil {
		return
	}
	m.written.WithLabelValues(tool).Inc()
}

// WriteTextfile writes every metric to path in the textfile collector format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
