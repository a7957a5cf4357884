package recovery

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the recovery protocol.
type Metrics struct {
	StrikesTotal     *prometheus.CounterVec
	EscalationsTotal *prometheus.CounterVec
	ResolutionsTotal prometheus.Counter
}

// NewMetrics creates and registers recovery metrics.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			StrikesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "atreides_recovery_strikes_total",
					Help: "Detected tool failures by category",
				},
				[]string{"category"},
			),
			EscalationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "atreides_recovery_escalations_total",
					Help: "Sessions escalated after repeated failures",
				},
				[]string{"category"},
			),
			ResolutionsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "atreides_recovery_resolutions_total",
					Help: "Escalations cleared by a failure-free execution",
				},
			),
		}
	})
	return globalMetrics
}

// RecordStrike records one detected failure.
func (m *Metrics) RecordStrike(category Category) {
	m.StrikesTotal.WithLabelValues(string(category)).Inc()
}

// RecordEscalation records a session entering the escalated state.
func (m *Metrics) RecordEscalation(category Category) {
	m.EscalationsTotal.WithLabelValues(string(category)).Inc()
}

// RecordResolution records an escalation being cleared.
func (m *Metrics) RecordResolution() {
	m.ResolutionsTotal.Inc()
}
