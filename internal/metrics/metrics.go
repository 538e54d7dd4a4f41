// Package metrics holds the Prometheus collectors exported by the login service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "login_service"

type Metrics struct {
	registry         *prometheus.Registry
	logins           *prometheus.CounterVec
	refreshes        *prometheus.CounterVec
	terminations     *prometheus.CounterVec
	cacheCorruptions prometheus.Counter
	refreshJobs      prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Background token refresh attempts by outcome.",
		}, []string{"outcome"}),
		terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_terminated_total",
			Help:      "Sessions terminated by reason.",
		}, []string{"reason"}),
		cacheCorruptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_corruptions_total",
			Help:      "Token cache blobs that failed to decode and were reset.",
		}),
		refreshJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresh_jobs",
			Help:      "Sessions with a pending background refresh.",
		}),
	}
	m.registry.MustRegister(m.logins, m.refreshes, m.terminations, m.cacheCorruptions, m.refreshJobs)
	return m
}

func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Refresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Terminated(reason string) {
	if m == nil {
		return
	}
	m.terminations.WithLabelValues(reason).Inc()
}

func (m *Metrics) CacheCorruption() {
	if m == nil {
		return
	}
	m.cacheCorruptions.Inc()
}

func (m *Metrics) SetRefreshJobs(n int) {
	if m == nil {
		return
	}
	m.refreshJobs.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
