package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the Prometheus collectors exposed on /metrics.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	LoginOutcomes   *prometheus.CounterVec
	AccountsLocked  prometheus.Counter
}

// NewMetrics registers the service collectors on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "med",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "med",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		LoginOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "med",
			Name:      "login_outcomes_total",
			Help:      "Login attempts by verdict",
		}, []string{"outcome"}),
		AccountsLocked: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "med",
			Name:      "accounts_locked_total",
			Help:      "Accounts locked by the lockout guard",
		}),
	}
}
