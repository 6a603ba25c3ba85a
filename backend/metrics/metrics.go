package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adlens_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adlens_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	UpstreamCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adlens_upstream_calls_total",
			Help: "Calls to external services by outcome",
		},
		[]string{"service", "outcome"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adlens_rate_limited_total",
			Help: "Requests rejected by the global rate limiter",
		},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adlens_stripe_webhook_events_total",
			Help: "Stripe webhook events by type and result",
		},
		[]string{"event_type", "result"},
	)
)

// Upstream records one call to an external service.
func Upstream(service string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	UpstreamCalls.WithLabelValues(service, outcome).Inc()
}
