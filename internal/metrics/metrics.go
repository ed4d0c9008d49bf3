// Package metrics exposes Prometheus collectors for the refresh protocol.
// All methods are safe on a nil *Metrics so components can run unmetered.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "animestream_auth"

type Metrics struct {
	registry *prometheus.Registry

	refreshes       *prometheus.CounterVec
	refreshWaiters  prometheus.Counter
	refreshDuration prometheus.Histogram
	replays         *prometheus.CounterVec
	apiErrors       *prometheus.CounterVec
	guardDecisions  *prometheus.CounterVec
	logouts         *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Refresh round-trips by outcome",
		}, []string{"outcome"}),

		refreshWaiters: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_joined_total",
			Help:      "Callers that joined an in-flight refresh instead of starting one",
		}),

		refreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of refresh round-trips",
			Buckets:   prometheus.DefBuckets,
		}),

		replays: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_replays_total",
			Help:      "Requests re-issued after a 401, by reason",
		}, []string{"reason"}),

		apiErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_errors_total",
			Help:      "Non-2xx responses seen by the request pipeline",
		}, []string{"status"}),

		guardDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_decisions_total",
			Help:      "Route guard outcomes",
		}, []string{"decision"}),

		logouts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logout_total",
			Help:      "Session clears by kind",
		}, []string{"kind"}),
	}
}

// Registry is the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RefreshDone(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
	m.refreshDuration.Observe(seconds)
}

func (m *Metrics) RefreshJoined() {
	if m == nil {
		return
	}
	m.refreshWaiters.Inc()
}

func (m *Metrics) Replayed(reason string) {
	if m == nil {
		return
	}
	m.replays.WithLabelValues(reason).Inc()
}

func (m *Metrics) APIError(status string) {
	if m == nil {
		return
	}
	m.apiErrors.WithLabelValues(status).Inc()
}

func (m *Metrics) GuardDecision(decision string) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) Logout(kind string) {
	if m == nil {
		return
	}
	m.logouts.WithLabelValues(kind).Inc()
}
