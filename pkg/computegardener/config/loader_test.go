package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/common"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv(common.EnvRegionName, "")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() returned error: %v", err)
	}

	if cfg.Provider.URL != common.DefaultProviderURL {
		t.Errorf("Expected provider URL %s, got %s", common.DefaultProviderURL, cfg.Provider.URL)
	}
	if cfg.Window.WindowSizeHours != common.DefaultWindowSizeHours {
		t.Errorf("Expected window size %d, got %d", common.DefaultWindowSizeHours, cfg.Window.WindowSizeHours)
	}
	if cfg.Window.EstimatedExecutionDuration != common.DefaultEstimatedExecutionDuration {
		t.Errorf("Expected duration %d, got %d", common.DefaultEstimatedExecutionDuration, cfg.Window.EstimatedExecutionDuration)
	}
	if cfg.Window.OnNoForecastExecute {
		t.Error("Expected OnNoForecastExecute to default to false")
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("Expected cache TTL 5m, got %v", cfg.Cache.TTL)
	}
	if cfg.Trigger.Interval != time.Minute {
		t.Errorf("Expected trigger interval 1m, got %v", cfg.Trigger.Interval)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv(common.EnvRegionName, "West Europe")
	t.Setenv(common.EnvEstimatedExecutionDuration, "30")
	t.Setenv(common.EnvExecutionTimeFrameInHours, "4")
	t.Setenv(common.EnvOnNoForecastExecute, "true")
	t.Setenv(common.EnvEmissionsThreshold, "120.5")
	t.Setenv(common.EnvOnNoEmissionsContinue, "true")
	t.Setenv(common.EnvAPIMaxRetries, "not-a-number")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() returned error: %v", err)
	}

	if cfg.Window.Region != "West Europe" {
		t.Errorf("Expected raw region to be kept, got %q", cfg.Window.Region)
	}
	if cfg.Window.EstimatedExecutionDuration != 30 {
		t.Errorf("Expected duration 30, got %d", cfg.Window.EstimatedExecutionDuration)
	}
	if cfg.Window.WindowSizeHours != 4 {
		t.Errorf("Expected legacy window alias to apply, got %d", cfg.Window.WindowSizeHours)
	}
	if !cfg.Window.OnNoForecastExecute {
		t.Error("Expected OnNoForecastExecute true")
	}
	if cfg.Emissions.Threshold != 120.5 {
		t.Errorf("Expected threshold 120.5, got %f", cfg.Emissions.Threshold)
	}
	if !cfg.Emissions.OnNoEmissionsContinue {
		t.Error("Expected OnNoEmissionsContinue true")
	}
	if cfg.Provider.MaxRetries != 3 {
		t.Errorf("Expected invalid integer to fall back to 3, got %d", cfg.Provider.MaxRetries)
	}
}

func TestWindowSizeHoursWinsOverAlias(t *testing.T) {
	t.Setenv(common.EnvExecutionTimeFrameInHours, "4")
	t.Setenv(common.EnvWindowSizeHours, "12")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() returned error: %v", err)
	}
	if cfg.Window.WindowSizeHours != 12 {
		t.Errorf("Expected WINDOW_SIZE_HOURS to win, got %d", cfg.Window.WindowSizeHours)
	}
}

func TestLoad(t *testing.T) {
	tempDir := t.TempDir()

	validConfigYAML := `
provider:
  url: https://carbon-aware.example.com
  apiKey: test-key
  timeout: 5s
  maxRetries: 2
  retryDelay: 100ms
  rateLimit: 5
window:
  region: eastus
  estimatedExecutionDuration: 20
  windowSizeHours: 6
  onNoForecastExecute: true
cache:
  ttl: 10m
  cleanupInterval: 30s
trigger:
  interval: 2m
  command: ./payload.sh
history:
  databasePath: /tmp/history.db
`
	validConfigPath := filepath.Join(tempDir, "config.yaml")
	if err := os.WriteFile(validConfigPath, []byte(validConfigYAML), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	invalidConfigPath := filepath.Join(tempDir, "invalid.yaml")
	if err := os.WriteFile(invalidConfigPath, []byte("window: [not-a-map"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	outOfBoundsPath := filepath.Join(tempDir, "bounds.yaml")
	if err := os.WriteFile(outOfBoundsPath, []byte("window:\n  windowSizeHours: 1\n  estimatedExecutionDuration: 61\n"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	envPath := filepath.Join(tempDir, ".env")
	if err := os.WriteFile(envPath, []byte("REGION_NAME=northeurope\nESTIMATED_EXECUTION_DURATION=25\n"), 0644); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}

	tests := []struct {
		name        string
		envFile     string
		configFile  string
		expectError bool
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name:       "yaml overlay",
			configFile: validConfigPath,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Provider.URL != "https://carbon-aware.example.com" {
					t.Errorf("Expected provider URL from file, got %s", cfg.Provider.URL)
				}
				if cfg.Provider.Timeout != 5*time.Second {
					t.Errorf("Expected timeout 5s, got %v", cfg.Provider.Timeout)
				}
				if cfg.Window.Region != "eastus" || cfg.Window.WindowSizeHours != 6 {
					t.Errorf("Unexpected window config: %+v", cfg.Window)
				}
				if cfg.Cache.TTL != 10*time.Minute {
					t.Errorf("Expected cache TTL 10m, got %v", cfg.Cache.TTL)
				}
				if cfg.Trigger.Command != "./payload.sh" {
					t.Errorf("Expected trigger command, got %q", cfg.Trigger.Command)
				}
			},
		},
		{
			name:    "env file",
			envFile: envPath,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Window.Region != "northeurope" {
					t.Errorf("Expected region from env file, got %q", cfg.Window.Region)
				}
				if cfg.Window.EstimatedExecutionDuration != 25 {
					t.Errorf("Expected duration 25, got %d", cfg.Window.EstimatedExecutionDuration)
				}
			},
		},
		{
			name:    "missing env file is ignored",
			envFile: filepath.Join(tempDir, "missing.env"),
		},
		{
			name:        "missing config file",
			configFile:  filepath.Join(tempDir, "missing.yaml"),
			expectError: true,
		},
		{
			name:        "invalid yaml",
			configFile:  invalidConfigPath,
			expectError: true,
		},
		{
			name:        "duration exceeds window",
			configFile:  outOfBoundsPath,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(common.EnvRegionName, "")
			t.Setenv(common.EnvEstimatedExecutionDuration, "")
			// godotenv only fills unset variables
			os.Unsetenv(common.EnvRegionName)
			os.Unsetenv(common.EnvEstimatedExecutionDuration)

			cfg, err := Load(tt.envFile, tt.configFile)
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() returned error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}
