package policy

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the validation pipeline.
type Metrics struct {
	ValidationsTotal  *prometheus.CounterVec
	ValidationSeconds prometheus.Histogram
	ObfuscatedTotal   prometheus.Counter
	CacheHitsTotal    prometheus.Counter
	CacheMissesTotal  prometheus.Counter
}

// NewMetrics creates and registers validation metrics. sync.Once guards
// against duplicate collector registration.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			ValidationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "atreides_validations_total",
					Help: "Total validation decisions by outcome",
				},
				[]string{"action"},
			),
			ValidationSeconds: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "atreides_validation_duration_seconds",
					Help:    "Duration of validation calls",
					Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
				},
			),
			ObfuscatedTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "atreides_validation_obfuscated_total",
					Help: "Inputs whose normalization differed from the raw text",
				},
			),
			CacheHitsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "atreides_validation_cache_hits_total",
					Help: "Validation result cache hits",
				},
			),
			CacheMissesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "atreides_validation_cache_misses_total",
					Help: "Validation result cache misses",
				},
			),
		}
	})
	return globalMetrics
}

// RecordDecision records a validation outcome.
func (m *Metrics) RecordDecision(action Action, seconds float64) {
	m.ValidationsTotal.WithLabelValues(string(action)).Inc()
	m.ValidationSeconds.Observe(seconds)
}

// RecordObfuscated records an input flagged as obfuscated.
func (m *Metrics) RecordObfuscated() {
	m.ObfuscatedTotal.Inc()
}

// RecordCacheHit records a result cache hit.
func (m *Metrics) RecordCacheHit() {
	m.CacheHitsTotal.Inc()
}

// RecordCacheMiss records a result cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.CacheMissesTotal.Inc()
}
