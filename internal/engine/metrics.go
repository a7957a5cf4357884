package engine

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the engine entry points.
type Metrics struct {
	HooksTotal          *prometheus.CounterVec
	RecoveredPanicTotal *prometheus.CounterVec
}

// NewMetrics creates and registers engine metrics.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			HooksTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "atreides_engine_hooks_total",
					Help: "Host hook invocations by type",
				},
				[]string{"hook"},
			),
			RecoveredPanicTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "atreides_engine_recovered_panics_total",
					Help: "Panics recovered at engine entry points",
				},
				[]string{"hook"},
			),
		}
	})
	return globalMetrics
}

// RecordHook records one hook invocation.
func (m *Metrics) RecordHook(hook string) {
	m.HooksTotal.WithLabelValues(hook).Inc()
}

// RecordPanic records one recovered panic.
func (m *Metrics) RecordPanic(hook string) {
	m.RecoveredPanicTotal.WithLabelValues(hook).Inc()
}
