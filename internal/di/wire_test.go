package di

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/poolrisk/internal/config"
	"github.com/aristath/poolrisk/internal/modules/rating"
	"github.com/aristath/poolrisk/internal/scheduler"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:     8001,
		LogLevel: "info",
		Simulation: config.SimulationConfig{
			Workers:       2,
			BatchSize:     500,
			MinTrials:     2000,
			MaxTrials:     50000,
			MaxBatches:    100,
			DefaultTrials: 5000,
		},
		RunRetention:       time.Hour,
		RunCleanupSchedule: "@every 5m",
	}
}

func TestWire(t *testing.T) {
	container, err := Wire(testConfig(), zerolog.Nop())
	require.NoError(t, err)

	assert.NotNil(t, container.Engine)
	assert.NotNil(t, container.Registry)
	assert.Equal(t, "2026.1", container.Ratings.Table().Version)
	assert.Equal(t, 2000, container.Driver.Limits().MinTrials)
	assert.Equal(t, 50000, container.Engine.Limits().MaxTrials)
	assert.Equal(t, 100, container.Driver.Limits().MaxBatches)
	assert.Equal(t, 2, container.Driver.Limits().MaxWorkers)
	assert.Equal(t, []string{scheduler.RunCleanupJobName}, container.Scheduler.JobNames())
}

func TestWire_WithReloadJob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.yaml")
	require.NoError(t, os.WriteFile(path, rating.DefaultTableYAML(), 0o644))

	cfg := testConfig()
	cfg.RatingTablePath = path
	cfg.RatingTableReload = "@every 1m"

	container, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{scheduler.RatingTableReloadJobName, scheduler.RunCleanupJobName}, container.Scheduler.JobNames())

	job, ok := container.Scheduler.Job(scheduler.RatingTableReloadJobName)
	require.True(t, ok)
	assert.NoError(t, job.Run())
}

func TestWire_Errors(t *testing.T) {
	t.Run("missing rating table", func(t *testing.T) {
		cfg := testConfig()
		cfg.RatingTablePath = filepath.Join(t.TempDir(), "missing.yaml")
		_, err := Wire(cfg, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("bad schedule", func(t *testing.T) {
		cfg := testConfig()
		cfg.RunCleanupSchedule = "never"
		_, err := Wire(cfg, zerolog.Nop())
		assert.Error(t, err)
	})
}
