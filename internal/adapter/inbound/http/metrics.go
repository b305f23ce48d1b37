package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	SessionsCreated     prometheus.Counter
	SessionsTerminated  prometheus.Counter
	RateLimitRejections prometheus.Counter
	CapacityRejections  prometheus.Counter
	UpstreamErrors      prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
// activeSessions and limiterKeys are gauge sources; pass nil to skip the
// corresponding gauge (e.g. when the redis backend owns key counting).
func NewMetrics(reg prometheus.Registerer, activeSessions, limiterKeys func() float64) *Metrics {
	if activeSessions != nil {
		promauto.With(reg).NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "conduit",
				Name:      "active_sessions",
				Help:      "Number of active sessions",
			},
			activeSessions,
		)
	}
	if limiterKeys != nil {
		promauto.With(reg).NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "conduit",
				Name:      "rate_limit_keys",
				Help:      "Number of tracked rate limit keys",
			},
			limiterKeys,
		)
	}

	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "conduit",
				Name:      "requests_total",
				Help:      "Total number of requests processed",
			},
			[]string{"method", "status"}, // status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "conduit",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		SessionsCreated: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "conduit",
				Name:      "sessions_created_total",
				Help:      "Total sessions created",
			},
		),
		SessionsTerminated: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "conduit",
				Name:      "sessions_terminated_total",
				Help:      "Total sessions terminated by client request",
			},
		),
		RateLimitRejections: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "conduit",
				Name:      "rate_limit_rejections_total",
				Help:      "Total requests rejected by the rate limiter",
			},
		),
		CapacityRejections: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "conduit",
				Name:      "capacity_rejections_total",
				Help:      "Total session creations rejected at capacity",
			},
		),
		UpstreamErrors: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "conduit",
				Name:      "upstream_errors_total",
				Help:      "Total upstream dispatch failures",
			},
		),
	}
}
