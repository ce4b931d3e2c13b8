// Package metrics exposes Prometheus collectors for the credential and
// session engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the engine's counters. A single instance is wired
// through the app and shared by handlers and services.
type Metrics struct {
	registry *prometheus.Registry

	LoginFailures     *prometheus.CounterVec
	RateLimited       *prometheus.CounterVec
	ReuseDetected     prometheus.Counter
	Revocations       *prometheus.CounterVec
	MFAFailures       *prometheus.CounterVec
	SessionsIssued    prometheus.Counter
	RefreshRotations  prometheus.Counter
	RealtimeConnected prometheus.Gauge
}

// New creates the engine collectors on a private registry, keeping the
// default registry's Go runtime collectors out of the exposition.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		LoginFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beauty",
			Name:      "login_failures_total",
			Help:      "Failed login attempts by reason.",
		}, []string{"reason"}),
		RateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beauty",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter, by purpose.",
		}, []string{"purpose"}),
		ReuseDetected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "beauty",
			Name:      "refresh_reuse_detected_total",
			Help:      "Refresh tokens replayed after rotation.",
		}),
		Revocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beauty",
			Name:      "revocations_total",
			Help:      "Device/session revocations by reason.",
		}, []string{"reason"}),
		MFAFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beauty",
			Name:      "mfa_failures_total",
			Help:      "Failed MFA verifications by method.",
		}, []string{"method"}),
		SessionsIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "beauty",
			Name:      "sessions_issued_total",
			Help:      "Sessions created on successful login.",
		}),
		RefreshRotations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "beauty",
			Name:      "refresh_rotations_total",
			Help:      "Successful refresh-token rotations.",
		}),
		RealtimeConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "beauty",
			Name:      "realtime_connections",
			Help:      "Currently connected realtime clients.",
		}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
