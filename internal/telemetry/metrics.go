package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_http_request_duration_seconds",
		Help:    "HTTP request latency by method, route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	SessionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_sessions_created_total",
		Help: "Hosted checkout sessions requested, by result.",
	}, []string{"kind", "result"})

	GatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_gateway_requests_total",
		Help: "Calls made to the payment provider, by operation and result.",
	}, []string{"op", "result"})

	GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_gateway_request_duration_seconds",
		Help:    "Latency of payment provider calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	ReconcileOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_reconcile_total",
		Help: "Reconciliation results, by terminal state and verification.",
	}, []string{"state", "verification"})

	Finalizes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_finalize_total",
		Help: "Finalize calls, by result (created, existing, error).",
	}, []string{"result"})
)
