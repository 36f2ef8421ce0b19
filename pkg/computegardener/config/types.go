package config

import (
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Config holds all configuration for the carbon-window host
type Config struct {
	Provider      ProviderConfig      `yaml:"provider"`
	Window        WindowConfig        `yaml:"window"`
	Emissions     EmissionsConfig     `yaml:"emissions"`
	Cache         CacheConfig         `yaml:"cache"`
	Trigger       TriggerConfig       `yaml:"trigger"`
	History       HistoryConfig       `yaml:"history"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ProviderConfig holds settings for the Carbon Aware SDK WebAPI
type ProviderConfig struct {
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"apiKey"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"maxRetries"`
	RetryDelay time.Duration `yaml:"retryDelay"`
	RateLimit  int           `yaml:"rateLimit"` // requests per second
}

// WindowConfig holds the settings consumed by the decision engine and facade
type WindowConfig struct {
	// Region is the forecast location. Normalised at decision time.
	Region string `yaml:"region"`

	// EstimatedExecutionDuration is the workload length in minutes
	EstimatedExecutionDuration int `yaml:"estimatedExecutionDuration"`

	// WindowSizeHours is how far ahead the optimal window is searched
	WindowSizeHours int `yaml:"windowSizeHours"`

	// OnNoForecastExecute downgrades "provider returned nothing" from an error
	// to a non-optimal response
	OnNoForecastExecute bool `yaml:"onNoForecastExecute"`
}

// EmissionsConfig holds settings for the threshold guard
type EmissionsConfig struct {
	Threshold             float64 `yaml:"threshold"`
	OnNoEmissionsContinue bool    `yaml:"onNoEmissionsContinue"`
}

// CacheConfig holds forecast memoization settings
type CacheConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanupInterval"`
}

// TriggerConfig holds the periodic trigger settings of the run command
type TriggerConfig struct {
	Interval time.Duration `yaml:"interval"`
	// Command is run through "sh -c" when the window is optimal. Optional.
	Command string `yaml:"command"`
}

// HistoryConfig holds the decision history store settings
type HistoryConfig struct {
	DatabasePath string        `yaml:"databasePath"` // empty disables history
	Retention    time.Duration `yaml:"retention"`
}

// ObservabilityConfig holds configuration for monitoring
type ObservabilityConfig struct {
	MetricsEnabled bool `yaml:"metricsEnabled"`
	MetricsPort    int  `yaml:"metricsPort"`
}

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	var allErrs field.ErrorList

	providerPath := field.NewPath("provider")
	if c.Provider.URL == "" {
		allErrs = append(allErrs, field.Required(providerPath.Child("url"), "forecast provider URL is required"))
	}
	if c.Provider.Timeout <= 0 {
		allErrs = append(allErrs, field.Invalid(providerPath.Child("timeout"), c.Provider.Timeout.String(), "must be positive"))
	}
	if c.Provider.MaxRetries < 0 {
		allErrs = append(allErrs, field.Invalid(providerPath.Child("maxRetries"), c.Provider.MaxRetries, "must not be negative"))
	}
	if c.Provider.RateLimit <= 0 {
		allErrs = append(allErrs, field.Invalid(providerPath.Child("rateLimit"), c.Provider.RateLimit, "must be positive"))
	}

	allErrs = append(allErrs, c.Window.validate(field.NewPath("window"))...)

	cachePath := field.NewPath("cache")
	if c.Cache.TTL < time.Second {
		allErrs = append(allErrs, field.Invalid(cachePath.Child("ttl"), c.Cache.TTL.String(), "must be at least 1s"))
	}
	if c.Cache.CleanupInterval <= 0 {
		allErrs = append(allErrs, field.Invalid(cachePath.Child("cleanupInterval"), c.Cache.CleanupInterval.String(), "must be positive"))
	}

	if c.Trigger.Interval <= 0 {
		allErrs = append(allErrs, field.Invalid(field.NewPath("trigger", "interval"), c.Trigger.Interval.String(), "must be positive"))
	}

	if c.Observability.MetricsEnabled && (c.Observability.MetricsPort <= 0 || c.Observability.MetricsPort > 65535) {
		allErrs = append(allErrs, field.Invalid(field.NewPath("observability", "metricsPort"), c.Observability.MetricsPort, "must be a valid port"))
	}

	if len(allErrs) > 0 {
		return allErrs.ToAggregate()
	}
	return nil
}

// validate checks the window bounds. The region is not required here: it may
// be supplied per call through the facade.
func (w WindowConfig) validate(path *field.Path) field.ErrorList {
	var allErrs field.ErrorList
	if w.WindowSizeHours < 1 {
		allErrs = append(allErrs, field.Invalid(path.Child("windowSizeHours"), w.WindowSizeHours, "must be at least 1"))
	}
	maxDuration := w.WindowSizeHours * 60
	if w.EstimatedExecutionDuration < 1 || (w.WindowSizeHours >= 1 && w.EstimatedExecutionDuration > maxDuration) {
		allErrs = append(allErrs, field.Invalid(path.Child("estimatedExecutionDuration"), w.EstimatedExecutionDuration,
			fmt.Sprintf("must be between 1 and %d minutes", maxDuration)))
	}
	return allErrs
}
