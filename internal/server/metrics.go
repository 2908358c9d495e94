// ABOUTME: Prometheus metrics for the gateway request pipeline.
// ABOUTME: Registered against an injected registerer, never the global one.

package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	Requests        *prometheus.CounterVec
	RateLimited     prometheus.Counter
	ActiveSessions  prometheus.Gauge
	RequestDuration *prometheus.HistogramVec
	PaymentAttempts prometheus.Counter
}

// NewMetrics creates and registers the gateway collectors. A nil
// registerer gets a private registry so tests never collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Requests processed, by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_rate_limited_total",
			Help: "Requests rejected by the per-connection rate limiter.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_active_sessions",
			Help: "Currently connected client sessions.",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Request processing time, by endpoint.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		PaymentAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_payment_attempts_total",
			Help: "Payment attempts submitted to the ledger, retries included.",
		}),
	}

	reg.MustRegister(m.Requests, m.RateLimited, m.ActiveSessions, m.RequestDuration, m.PaymentAttempts)
	return m
}
