package workflow

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fyrsmithlabs/atreides/internal/session"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the phase engine.
type Metrics struct {
	TransitionsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers phase engine metrics.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			TransitionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "atreides_phase_transitions_total",
					Help: "Accepted workflow phase transitions",
				},
				[]string{"from", "to"},
			),
		}
	})
	return globalMetrics
}

// RecordTransition records an accepted phase transition.
func (m *Metrics) RecordTransition(from, to session.Phase) {
	m.TransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}
