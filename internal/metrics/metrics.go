package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ieltswriter_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ieltswriter_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	AICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ieltswriter_ai_calls_total",
			Help: "AI transport calls by route, operation and outcome kind.",
		},
		[]string{"route", "operation", "outcome"},
	)

	AICallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ieltswriter_ai_call_duration_seconds",
			Help:    "AI transport call duration in seconds.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"route"},
	)

	QuotaRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ieltswriter_quota_rejections_total",
			Help: "Free-tier generations rejected because the daily cap was reached.",
		},
	)

	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ieltswriter_rate_limited_total",
			Help: "Requests rejected by a per-user rate limiter.",
		},
		[]string{"limiter"},
	)

	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ieltswriter_cache_lookups_total",
			Help: "Result cache lookups by tier and result (hit, miss, stale, error).",
		},
		[]string{"tier", "result"},
	)

	AttemptsRecordedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ieltswriter_attempts_recorded_total",
			Help: "Graded attempts folded into user stats.",
		},
		[]string{"task_type"},
	)

	RollupRecomputeTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ieltswriter_rollup_recompute_total",
			Help: "Global admin rollup recomputations.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AICallsTotal,
		AICallDuration,
		QuotaRejectionsTotal,
		RateLimitedTotal,
		CacheLookupsTotal,
		AttemptsRecordedTotal,
		RollupRecomputeTotal,
	)
}
