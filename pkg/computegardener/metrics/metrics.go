package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "compute_gardener"
	// Subsystem name used for window decision metrics
	windowSubsystem = "window"
)

var (
	// DecisionsTotal counts decisions by outcome
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: windowSubsystem,
			Name:      "decisions_total",
			Help:      "Number of optimal-window decisions by reason",
		},
		[]string{"region", "reason"}, // reason: "optimal_now", "next_window", "no_optimal_window", "no_forecast_data", "error"
	)

	// OptimalWindowTimestamp exposes the next known optimal window per region
	OptimalWindowTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: windowSubsystem,
			Name:      "optimal_window_timestamp_seconds",
			Help:      "Unix time of the best forecast window found by the last decision",
		},
		[]string{"region"},
	)

	// ForecastRequests counts upstream forecast provider calls
	ForecastRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: windowSubsystem,
			Name:      "forecast_requests_total",
			Help:      "Number of forecast provider calls by result",
		},
		[]string{"endpoint", "result"}, // result: "success", "empty", "error"
	)

	// ForecastLatency measures forecast provider call latency
	ForecastLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: windowSubsystem,
			Name:      "forecast_request_duration_seconds",
			Help:      "Latency of forecast provider calls including retries",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"endpoint"},
	)

	// CacheLookups counts cache-aside guard lookups
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: windowSubsystem,
			Name:      "cache_lookups_total",
			Help:      "Number of cache-aside guard lookups by result",
		},
		[]string{"result"}, // "hit", "miss", "shared"
	)

	// CacheEntries tracks the number of live cache entries
	CacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: windowSubsystem,
			Name:      "cache_entries",
			Help:      "Number of entries held by the cache-aside guard",
		},
	)

	// EmissionsRating exposes the last rating seen by the threshold guard
	EmissionsRating = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: windowSubsystem,
			Name:      "emissions_rating",
			Help:      "Last emissions rating (gCO2eq/kWh) observed by the threshold guard",
		},
		[]string{"region"},
	)

	// PayloadRuns counts payload executions triggered by approved decisions
	PayloadRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: windowSubsystem,
			Name:      "payload_runs_total",
			Help:      "Number of payload runs by result",
		},
		[]string{"result"}, // "success", "error", "skipped"
	)
)

func init() {
	prometheus.MustRegister(
		DecisionsTotal,
		OptimalWindowTimestamp,
		ForecastRequests,
		ForecastLatency,
		CacheLookups,
		CacheEntries,
		EmissionsRating,
		PayloadRuns,
	)
}
