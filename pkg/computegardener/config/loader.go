package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
	"k8s.io/klog/v2"

	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/common"
)

// Load builds the configuration from the environment, optionally preloading a
// .env file and overlaying a YAML file. Values present in the YAML file win
// over environment values. Either path may be empty.
func Load(envFile, configFile string) (*Config, error) {
	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}

	cfg := fromEnv()

	if configFile != "" {
		if err := overlayFile(cfg, configFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	klog.V(2).InfoS("Loaded configuration",
		"region", cfg.Window.Region,
		"windowSizeHours", cfg.Window.WindowSizeHours,
		"estimatedExecutionDuration", cfg.Window.EstimatedExecutionDuration,
		"onNoForecastExecute", cfg.Window.OnNoForecastExecute,
		"providerURL", cfg.Provider.URL,
		"historyEnabled", cfg.History.DatabasePath != "")

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() (*Config, error) {
	cfg := fromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func fromEnv() *Config {
	windowHours := getIntOrDefault(common.EnvExecutionTimeFrameInHours, common.DefaultWindowSizeHours)
	windowHours = getIntOrDefault(common.EnvWindowSizeHours, windowHours)

	return &Config{
		Provider: ProviderConfig{
			URL:        getEnvOrDefault(common.EnvProviderURL, common.DefaultProviderURL),
			APIKey:     os.Getenv(common.EnvProviderAPIKey),
			Timeout:    getDurationOrDefault(common.EnvAPITimeout, 10*time.Second),
			MaxRetries: getIntOrDefault(common.EnvAPIMaxRetries, 3),
			RetryDelay: getDurationOrDefault(common.EnvAPIRetryDelay, 1*time.Second),
			RateLimit:  getIntOrDefault(common.EnvAPIRateLimit, 10),
		},
		Window: WindowConfig{
			Region:                     os.Getenv(common.EnvRegionName),
			EstimatedExecutionDuration: getIntOrDefault(common.EnvEstimatedExecutionDuration, common.DefaultEstimatedExecutionDuration),
			WindowSizeHours:            windowHours,
			OnNoForecastExecute:        getBoolOrDefault(common.EnvOnNoForecastExecute, false),
		},
		Emissions: EmissionsConfig{
			Threshold:             getFloatOrDefault(common.EnvEmissionsThreshold, 0),
			OnNoEmissionsContinue: getBoolOrDefault(common.EnvOnNoEmissionsContinue, false),
		},
		Cache: CacheConfig{
			TTL:             getDurationOrDefault(common.EnvCacheTTL, common.DefaultForecastTTL),
			CleanupInterval: getDurationOrDefault(common.EnvCacheCleanupInterval, common.DefaultCacheCleanupInterval),
		},
		Trigger: TriggerConfig{
			Interval: getDurationOrDefault(common.EnvTriggerInterval, common.DefaultTriggerInterval),
			Command:  os.Getenv(common.EnvTriggerCommand),
		},
		History: HistoryConfig{
			DatabasePath: os.Getenv(common.EnvHistoryDatabasePath),
			Retention:    getDurationOrDefault(common.EnvHistoryRetention, common.DefaultHistoryRetention),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getBoolOrDefault(common.EnvMetricsEnabled, true),
			MetricsPort:    getIntOrDefault(common.EnvMetricsPort, common.DefaultMetricsPort),
		},
	}
}

// loadDotEnv populates the environment from a .env file without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			klog.V(3).InfoS("No env file found, using process environment", "path", path)
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if strValue := os.Getenv(key); strValue != "" {
		if value, err := strconv.Atoi(strValue); err == nil {
			return value
		}
		klog.V(2).InfoS("Invalid integer value, using default",
			"key", key,
			"value", strValue,
			"default", defaultValue)
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if strValue := os.Getenv(key); strValue != "" {
		if value, err := strconv.ParseFloat(strValue, 64); err == nil {
			return value
		}
		klog.V(2).InfoS("Invalid float value, using default",
			"key", key,
			"value", strValue,
			"default", defaultValue)
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if strValue := os.Getenv(key); strValue != "" {
		value, err := strconv.ParseBool(strValue)
		if err == nil {
			return value
		}
		klog.V(2).InfoS("Invalid boolean value, using default",
			"key", key,
			"value", strValue,
			"default", defaultValue)
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if strValue := os.Getenv(key); strValue != "" {
		if value, err := time.ParseDuration(strValue); err == nil {
			return value
		}
		klog.V(2).InfoS("Invalid duration value, using default",
			"key", key,
			"value", strValue,
			"default", defaultValue)
	}
	return defaultValue
}
