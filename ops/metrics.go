// Package ops exposes the service's Prometheus metrics and health endpoints.
package ops

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "mcaccounts"

// Metrics records request and side-effect observations in Prometheus collectors.
// It satisfies accounts.Metrics.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	resolverLookups *prometheus.CounterVec
	whitelistCalls  *prometheus.CounterVec
	divergence      *prometheus.CounterVec
}

// NewMetrics creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Handled requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request handling latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		resolverLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolver_lookups_total",
			Help:      "Username lookups by outcome.",
		}, []string{"outcome"}),
		whitelistCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "whitelist_calls_total",
			Help:      "Whitelist requests by action and outcome.",
		}, []string{"action", "outcome"}),
		divergence: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "whitelist_divergence_total",
			Help:      "Whitelist changes the store failed to follow.",
		}, []string{"operation"}),
	}

	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.resolverLookups,
		m.whitelistCalls,
		m.divergence,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry served on /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveRequest(operation, outcome string, d time.Duration) {
	m.requests.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) ResolverLookup(outcome string) {
	m.resolverLookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) WhitelistCall(action, outcome string) {
	m.whitelistCalls.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) WhitelistDivergence(operation string) {
	m.divergence.WithLabelValues(operation).Inc()
}
