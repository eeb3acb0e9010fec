// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring gatekeeper.
package observability

import "github.com/prometheus/client_golang/prometheus"

// AuthBuckets are histogram buckets for strategy latency, from 100µs for
// hash lookups to 5s for a cold JWKS fetch.
var AuthBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

var (
	// RequestsTotal counts HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gatekeeper_request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// StrategyDecisionsTotal counts strategy votes by label and decision.
	StrategyDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_strategy_decisions_total",
			Help: "Strategy decisions",
		},
		[]string{"strategy", "decision"},
	)

	// StrategyDuration records how long each strategy took to decide.
	StrategyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gatekeeper_strategy_duration_seconds",
			Help:    "Strategy authentication duration",
			Buckets: AuthBuckets,
		},
		[]string{"strategy"},
	)

	// StrategyPanicsTotal counts strategies that panicked during Valid or Authenticate.
	StrategyPanicsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_strategy_panics_total",
			Help: "Strategy panics",
		},
		[]string{"strategy"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StrategyDecisionsTotal,
		StrategyDuration,
		StrategyPanicsTotal,
		RateLimitRejectedTotal,
	)
}
