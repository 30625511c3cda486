package config

import (
	"os"
	"testing"
)

func TestLoadConfigWithDefaults(t *testing.T) {
	// Set only required env vars
	setTestEnv(t, map[string]string{
		"FITBIT_CLIENT_ID":     "test_client_id",
		"FITBIT_CLIENT_SECRET": "test_client_secret",
		"FITBIT_REDIRECT_URI":  "http://localhost:4200/fitbit/callback",
	})

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Check defaults
	if config.Host != "localhost" {
		t.Errorf("Expected default host 'localhost', got %s", config.Host)
	}
	if config.Port != 4200 {
		t.Errorf("Expected default port 4200, got %d", config.Port)
	}
	if config.DatabasePath != "./health-lens.db" {
		t.Errorf("Expected default database path './health-lens.db', got %s", config.DatabasePath)
	}
	if config.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %s", config.LogLevel)
	}
	if config.MetricsEnabled {
		t.Error("Expected metrics disabled by default")
	}
	if config.BackfillCutoffDate.Format("2006-01-02") != DefaultBackfillCutoff {
		t.Errorf("Expected default cutoff %s, got %s", DefaultBackfillCutoff, config.BackfillCutoffDate.Format("2006-01-02"))
	}

	// Check required values
	if config.FitbitClientID != "test_client_id" {
		t.Errorf("Expected FITBIT_CLIENT_ID 'test_client_id', got %s", config.FitbitClientID)
	}
	if config.FitbitClientSecret != "test_client_secret" {
		t.Errorf("Expected FITBIT_CLIENT_SECRET 'test_client_secret', got %s", config.FitbitClientSecret)
	}
}

func TestLoadConfigFromEnvVars(t *testing.T) {
	setTestEnv(t, map[string]string{
		"HOST":                 "0.0.0.0",
		"PORT":                 "8080",
		"DATABASE_PATH":        "/tmp/test.db",
		"FITBIT_CLIENT_ID":     "custom_client_id",
		"FITBIT_CLIENT_SECRET": "custom_client_secret",
		"FITBIT_REDIRECT_URI":  "https://example.com/callback",
		"LOG_LEVEL":            "debug",
		"METRICS_ENABLED":      "true",
		"METRICS_PORT":         "9100",
		"BACKFILL_CUTOFF_DATE": "2015-06-01",
	})

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Host != "0.0.0.0" {
		t.Errorf("Expected host '0.0.0.0', got %s", config.Host)
	}
	if config.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", config.Port)
	}
	if config.DatabasePath != "/tmp/test.db" {
		t.Errorf("Expected database path '/tmp/test.db', got %s", config.DatabasePath)
	}
	if config.LogLevel != "debug" {
		t.Errorf("Expected log level 'debug', got %s", config.LogLevel)
	}
	if !config.MetricsEnabled {
		t.Error("Expected metrics enabled")
	}
	if config.MetricsPort != 9100 {
		t.Errorf("Expected metrics port 9100, got %d", config.MetricsPort)
	}
	if config.BackfillCutoffDate.Format("2006-01-02") != "2015-06-01" {
		t.Errorf("Expected cutoff 2015-06-01, got %s", config.BackfillCutoffDate.Format("2006-01-02"))
	}
}

func TestValidationMissingRequiredVars(t *testing.T) {
	setTestEnv(t, map[string]string{
		// Missing FITBIT_CLIENT_ID
		"FITBIT_CLIENT_SECRET": "test_client_secret",
		"FITBIT_REDIRECT_URI":  "http://localhost/callback",
	})

	_, err := Load()
	if err == nil {
		t.Error("Expected validation error for missing FITBIT_CLIENT_ID")
	}
}

func TestValidationInvalidCutoffDate(t *testing.T) {
	setTestEnv(t, map[string]string{
		"FITBIT_CLIENT_ID":     "test_client_id",
		"FITBIT_CLIENT_SECRET": "test_client_secret",
		"FITBIT_REDIRECT_URI":  "http://localhost/callback",
		"BACKFILL_CUTOFF_DATE": "not-a-date",
	})

	_, err := Load()
	if err == nil {
		t.Error("Expected validation error for invalid BACKFILL_CUTOFF_DATE")
	}
}

func TestInvalidIntFallsBackToDefault(t *testing.T) {
	setTestEnv(t, map[string]string{
		"PORT":                 "not-a-number",
		"FITBIT_CLIENT_ID":     "test_client_id",
		"FITBIT_CLIENT_SECRET": "test_client_secret",
		"FITBIT_REDIRECT_URI":  "http://localhost/callback",
	})

	config, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if config.Port != 4200 {
		t.Errorf("Expected default port 4200 for bad PORT, got %d", config.Port)
	}
}

// Helper function to set test environment variables and clean up after test
func setTestEnv(t *testing.T, vars map[string]string) {
	t.Helper()

	clearTestEnv(t)

	for key, value := range vars {
		os.Setenv(key, value)
		t.Cleanup(func() {
			os.Unsetenv(key)
		})
	}
}

// Helper function to clear all config-related environment variables
func clearTestEnv(t *testing.T) {
	t.Helper()

	envVars := []string{
		"HOST", "PORT", "DATABASE_PATH",
		"FITBIT_CLIENT_ID", "FITBIT_CLIENT_SECRET", "FITBIT_REDIRECT_URI",
		"BACKFILL_CUTOFF_DATE", "LOG_LEVEL",
		"METRICS_ENABLED", "METRICS_HOST", "METRICS_PORT",
	}

	for _, key := range envVars {
		os.Unsetenv(key)
	}
}
