// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/cpu"
)

// Config holds application configuration
type Config struct {
	Port      int
	LogLevel  string
	LogPretty bool
	DevMode   bool

	// RatingTablePath is a YAML threshold table; empty uses the embedded table
	RatingTablePath string
	// RatingTableReload is a cron schedule for re-reading the table; empty disables it
	RatingTableReload string

	// AllowedOrigins are host patterns (e.g. "localhost:*") trusted for CORS
	// and WebSocket upgrades
	AllowedOrigins []string

	Simulation SimulationConfig

	RunRetention       time.Duration
	RunCleanupSchedule string
}

// SimulationConfig holds the driver defaults and limits
type SimulationConfig struct {
	Workers       int // resolved to the CPU count when unset
	BatchSize     int
	MinTrials     int
	MaxTrials     int
	MaxBatches    int
	DefaultTrials int
}

// cronParser matches the scheduler, which runs cron with an optional seconds field
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnvAsInt("PORT", 8001),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogPretty:         getEnvAsBool("LOG_PRETTY", true),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		RatingTablePath:   getEnv("RATING_TABLE_PATH", ""),
		RatingTableReload: getEnv("RATING_TABLE_RELOAD", ""),
		AllowedOrigins:    getEnvAsList("ALLOWED_ORIGINS", []string{"localhost:*", "127.0.0.1:*"}),
		Simulation: SimulationConfig{
			Workers:       getEnvAsInt("SIM_WORKERS", 0),
			BatchSize:     getEnvAsInt("SIM_BATCH_SIZE", 1000),
			MinTrials:     getEnvAsInt("SIM_MIN_TRIALS", 1000),
			MaxTrials:     getEnvAsInt("SIM_MAX_TRIALS", 1000000),
			MaxBatches:    getEnvAsInt("SIM_MAX_BATCHES", 10000),
			DefaultTrials: getEnvAsInt("SIM_DEFAULT_TRIALS", 10000),
		},
		RunRetention:       time.Duration(getEnvAsInt("RUN_RETENTION_MINUTES", 60)) * time.Minute,
		RunCleanupSchedule: getEnv("RUN_CLEANUP_SCHEDULE", "@every 5m"),
	}

	if cfg.Simulation.Workers == 0 {
		cfg.Simulation.Workers = cpuCount()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", c.LogLevel)
	}

	sim := c.Simulation
	if sim.Workers < 0 {
		return fmt.Errorf("SIM_WORKERS must not be negative, got %d", sim.Workers)
	}
	if sim.BatchSize <= 0 {
		return fmt.Errorf("SIM_BATCH_SIZE must be positive, got %d", sim.BatchSize)
	}
	if sim.MinTrials <= 0 {
		return fmt.Errorf("SIM_MIN_TRIALS must be positive, got %d", sim.MinTrials)
	}
	if sim.MaxTrials < sim.MinTrials {
		return fmt.Errorf("SIM_MAX_TRIALS (%d) must not be below SIM_MIN_TRIALS (%d)", sim.MaxTrials, sim.MinTrials)
	}
	if sim.DefaultTrials < sim.MinTrials || sim.DefaultTrials > sim.MaxTrials {
		return fmt.Errorf("SIM_DEFAULT_TRIALS (%d) must be within [%d, %d]", sim.DefaultTrials, sim.MinTrials, sim.MaxTrials)
	}
	if sim.MaxBatches <= 0 {
		return fmt.Errorf("SIM_MAX_BATCHES must be positive, got %d", sim.MaxBatches)
	}
	if batches := (sim.DefaultTrials + sim.BatchSize - 1) / sim.BatchSize; batches > sim.MaxBatches {
		return fmt.Errorf("SIM_MAX_BATCHES (%d) is below the %d batches of a default run", sim.MaxBatches, batches)
	}

	if c.RunRetention <= 0 {
		return fmt.Errorf("RUN_RETENTION_MINUTES must be positive, got %v", c.RunRetention)
	}
	if _, err := cronParser.Parse(c.RunCleanupSchedule); err != nil {
		return fmt.Errorf("RUN_CLEANUP_SCHEDULE %q: %w", c.RunCleanupSchedule, err)
	}
	if c.RatingTableReload != "" {
		if _, err := cronParser.Parse(c.RatingTableReload); err != nil {
			return fmt.Errorf("RATING_TABLE_RELOAD %q: %w", c.RatingTableReload, err)
		}
	}
	return nil
}

// cpuCount returns the logical CPU count, falling back to the Go runtime's view
func cpuCount() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
