package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "LOG_PRETTY", "DEV_MODE", "RATING_TABLE_PATH", "RATING_TABLE_RELOAD",
		"SIM_WORKERS", "SIM_BATCH_SIZE", "SIM_MIN_TRIALS", "SIM_MAX_TRIALS", "SIM_DEFAULT_TRIALS",
		"RUN_RETENTION_MINUTES", "RUN_CLEANUP_SCHEDULE",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.LogPretty)
	assert.False(t, cfg.DevMode)
	assert.Empty(t, cfg.RatingTablePath)
	assert.Empty(t, cfg.RatingTableReload)
	assert.Greater(t, cfg.Simulation.Workers, 0, "workers resolve to the CPU count")
	assert.Equal(t, 1000, cfg.Simulation.BatchSize)
	assert.Equal(t, 1000, cfg.Simulation.MinTrials)
	assert.Equal(t, 1000000, cfg.Simulation.MaxTrials)
	assert.Equal(t, 10000, cfg.Simulation.MaxBatches)
	assert.Equal(t, []string{"localhost:*", "127.0.0.1:*"}, cfg.AllowedOrigins)
	assert.Equal(t, 10000, cfg.Simulation.DefaultTrials)
	assert.Equal(t, time.Hour, cfg.RunRetention)
	assert.Equal(t, "@every 5m", cfg.RunCleanupSchedule)
}

func TestLoad_FromEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PORT", "9100")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_PRETTY", "false")
	t.Setenv("SIM_WORKERS", "3")
	t.Setenv("SIM_DEFAULT_TRIALS", "5000")
	t.Setenv("RATING_TABLE_RELOAD", "0 */10 * * * *")
	t.Setenv("RUN_RETENTION_MINUTES", "15")
	t.Setenv("ALLOWED_ORIGINS", "risk.example.com, localhost:*,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.LogPretty)
	assert.Equal(t, 3, cfg.Simulation.Workers)
	assert.Equal(t, 5000, cfg.Simulation.DefaultTrials)
	assert.Equal(t, "0 */10 * * * *", cfg.RatingTableReload)
	assert.Equal(t, 15*time.Minute, cfg.RunRetention)
	assert.Equal(t, []string{"risk.example.com", "localhost:*"}, cfg.AllowedOrigins)
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PORT", "not-a-port")
	t.Setenv("LOG_PRETTY", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8001, cfg.Port)
	assert.True(t, cfg.LogPretty)
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, writeFile(dir+"/.env", "SIM_BATCH_SIZE=250\n"))
	// godotenv never overrides a variable that exists, even when empty
	t.Setenv("SIM_BATCH_SIZE", "")
	require.NoError(t, os.Unsetenv("SIM_BATCH_SIZE"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Simulation.BatchSize)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:     8001,
			LogLevel: "info",
			Simulation: SimulationConfig{
				Workers:       2,
				BatchSize:     1000,
				MinTrials:     1000,
				MaxTrials:     1000000,
				MaxBatches:    10000,
				DefaultTrials: 10000,
			},
			RunRetention:       time.Hour,
			RunCleanupSchedule: "@every 5m",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"port out of range", func(c *Config) { c.Port = 70000 }, "PORT"},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }, "LOG_LEVEL"},
		{"negative workers", func(c *Config) { c.Simulation.Workers = -1 }, "SIM_WORKERS"},
		{"zero batch", func(c *Config) { c.Simulation.BatchSize = 0 }, "SIM_BATCH_SIZE"},
		{"max below min", func(c *Config) { c.Simulation.MaxTrials = 10 }, "SIM_MAX_TRIALS"},
		{"zero max batches", func(c *Config) { c.Simulation.MaxBatches = 0 }, "SIM_MAX_BATCHES"},
		{"default run over batch cap", func(c *Config) { c.Simulation.MaxBatches = 5 }, "SIM_MAX_BATCHES"},
		{"default outside limits", func(c *Config) { c.Simulation.DefaultTrials = 10 }, "SIM_DEFAULT_TRIALS"},
		{"zero retention", func(c *Config) { c.RunRetention = 0 }, "RUN_RETENTION_MINUTES"},
		{"bad cleanup schedule", func(c *Config) { c.RunCleanupSchedule = "sometimes" }, "RUN_CLEANUP_SCHEDULE"},
		{"bad reload schedule", func(c *Config) { c.RatingTableReload = "* * *" }, "RATING_TABLE_RELOAD"},
		{"five-field cron accepted", func(c *Config) { c.RatingTableReload = "*/15 * * * *" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

// chdir moves into dir for the test so godotenv does not pick up a stray .env
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
