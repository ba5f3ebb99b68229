// Package metrics defines the Prometheus metrics recorded by the discovery
// engine.
//
// A nil [*Metrics] is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "loadout"

// Discovery outcomes.
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

// Metrics holds the engine's collectors.
type Metrics struct {
	discoveries   *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	selected      prometheus.Histogram
	invalidations *prometheus.CounterVec
	scanErrors    *prometheus.CounterVec
	limitExceeded prometheus.Counter
	gatherer      prometheus.Gatherer
}

// New creates the collectors and registers them with a new registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		gatherer: reg,
		discoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discoveries_total",
			Help:      "Discovery runs by scope and cache result.",
		}, []string{"scope", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "discovery_duration_seconds",
			Help:      "Time spent in discovery runs.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"result"}),
		selected: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "selected_rules",
			Help:      "Number of rules selected per pipeline run.",
			Buckets:   prometheus.LinearBuckets(0, 2, 8),
		}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_invalidations_total",
			Help:      "Session cache invalidations by trigger.",
		}, []string{"reason"}),
		scanErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_errors_total",
			Help:      "Input items a scanner could not use.",
		}, []string{"source"}),
		limitExceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "limit_exceeded_total",
			Help:      "Runs where required rules alone exceeded the scope limit.",
		}),
	}

	reg.MustRegister(
		m.discoveries,
		m.duration,
		m.selected,
		m.invalidations,
		m.scanErrors,
		m.limitExceeded,
	)

	return m
}

// ObserveDiscovery records one discovery run.
func (m *Metrics) ObserveDiscovery(scope, result string, d time.Duration) {
	if m == nil {
		return
	}

	m.discoveries.WithLabelValues(scope, result).Inc()
	m.duration.WithLabelValues(result).Observe(d.Seconds())
}

// ObserveSelected records the size of a computed result.
func (m *Metrics) ObserveSelected(n int) {
	if m == nil {
		return
	}

	m.selected.Observe(float64(n))
}

// IncInvalidation counts a session invalidation.
func (m *Metrics) IncInvalidation(reason string) {
	if m == nil {
		return
	}

	m.invalidations.WithLabelValues(reason).Inc()
}

// IncScanError counts a scanner item failure.
func (m *Metrics) IncScanError(source string) {
	if m == nil {
		return
	}

	m.scanErrors.WithLabelValues(source).Inc()
}

// IncLimitExceeded counts a limit warning.
func (m *Metrics) IncLimitExceeded() {
	if m == nil {
		return
	}

	m.limitExceeded.Inc()
}

// Gatherer returns the registry holding the collectors.
//
//nolint:ireturn // Prometheus API.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}

	return m.gatherer
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Gatherer(), promhttp.HandlerOpts{})
}
