package common

import "time"

// Environment variables recognised by the configuration loader
const (
	// ----------------------------------------
	// Decision settings
	// ----------------------------------------

	// EnvRegionName holds the grid location the workload runs in
	EnvRegionName = "REGION_NAME"

	EnvEstimatedExecutionDuration = "ESTIMATED_EXECUTION_DURATION"
	EnvWindowSizeHours            = "WINDOW_SIZE_HOURS"
	EnvExecutionTimeFrameInHours  = "EXECUTION_TIME_FRAME_IN_HOURS" // legacy alias of WINDOW_SIZE_HOURS
	EnvOnNoForecastExecute        = "ON_NO_FORECAST_EXECUTE"

	// Threshold guard settings
	EnvEmissionsThreshold    = "EMISSIONS_THRESHOLD"
	EnvOnNoEmissionsContinue = "ON_NO_EMISSIONS_CONTINUE"

	// ----------------------------------------
	// Forecast provider
	// ----------------------------------------

	EnvProviderURL    = "CARBON_AWARE_API_URL"
	EnvProviderAPIKey = "CARBON_AWARE_API_KEY"
	EnvAPITimeout     = "API_TIMEOUT"
	EnvAPIMaxRetries  = "API_MAX_RETRIES"
	EnvAPIRetryDelay  = "API_RETRY_DELAY"
	EnvAPIRateLimit   = "API_RATE_LIMIT"

	// ----------------------------------------
	// Host process
	// ----------------------------------------

	EnvCacheTTL             = "CACHE_TTL"
	EnvCacheCleanupInterval = "CACHE_CLEANUP_INTERVAL"
	EnvTriggerInterval      = "TRIGGER_INTERVAL"
	EnvTriggerCommand       = "TRIGGER_COMMAND"
	EnvHistoryDatabasePath  = "HISTORY_DATABASE_PATH"
	EnvHistoryRetention     = "HISTORY_RETENTION"
	EnvMetricsPort          = "METRICS_PORT"
	EnvMetricsEnabled       = "METRICS_ENABLED"
)

// Defaults
const (
	DefaultProviderURL                = "http://localhost:8080"
	DefaultEstimatedExecutionDuration = 15
	DefaultWindowSizeHours            = 8

	// DefaultForecastTTL is how long one provider answer is reused. Evaluation
	// instants are 5-minute aligned, so one answer serves a whole bucket.
	DefaultForecastTTL = 5 * time.Minute

	// EvaluationGranularity is the alignment of forecast data points
	EvaluationGranularity = 5 * time.Minute

	DefaultCacheCleanupInterval = time.Minute
	DefaultTriggerInterval      = time.Minute
	DefaultHistoryRetention     = 7 * 24 * time.Hour
	DefaultMetricsPort          = 9090
)
