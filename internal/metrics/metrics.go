// Package metrics instruments the orchestration engine with
// Prometheus counters and histograms.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's instruments. All recording methods are
// safe on a nil receiver so callers never need metrics wiring in
// tests.
type Metrics struct {
	registry *prometheus.Registry

	stepsTotal        *prometheus.CounterVec
	stepDuration      *prometheus.HistogramVec
	retriesTotal      prometheus.Counter
	decisionsTotal    *prometheus.CounterVec
	qualityIterations prometheus.Histogram
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "swarmd_steps_total",
			Help: "Steps reaching a terminal status, labeled by agent and status.",
		}, []string{"agent", "status"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swarmd_step_duration_seconds",
			Help:    "Wall time from step start to terminal status, labeled by agent.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"agent"}),
		retriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "swarmd_step_retries_total",
			Help: "Invocation attempts beyond the first, across all steps.",
		}),
		decisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "swarmd_routing_decisions_total",
			Help: "Routing decisions, labeled by action and strategy.",
		}, []string{"action", "strategy"}),
		qualityIterations: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "swarmd_quality_iterations",
			Help:    "Validate iterations per quality loop run.",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStep records a step reaching a terminal status.
func (m *Metrics) ObserveStep(agent, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stepsTotal.WithLabelValues(agent, status).Inc()
	m.stepDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// RecordRetry counts one invocation attempt beyond the first.
func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.retriesTotal.Inc()
}

// RecordDecision counts one routing decision.
func (m *Metrics) RecordDecision(action, strategy string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(action, strategy).Inc()
}

// ObserveQualityIterations records how many validate iterations a
// quality loop run took.
func (m *Metrics) ObserveQualityIterations(n int) {
	if m == nil {
		return
	}
	m.qualityIterations.Observe(float64(n))
}
