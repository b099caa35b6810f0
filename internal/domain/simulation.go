package domain

import (
	"fmt"
	"math"
	"strings"
)

// Granularity is the cashflow timing step used by the loss aggregator
type Granularity string

const (
	GranularityMonthly   Granularity = "monthly"
	GranularityQuarterly Granularity = "quarterly"
	GranularityAnnual    Granularity = "annual"
)

// Months returns the length of one period in months
func (g Granularity) Months() int {
	switch g {
	case GranularityQuarterly:
		return 3
	case GranularityAnnual:
		return 12
	default:
		return 1
	}
}

// Simulation defaults
const (
	DefaultTrials     = 10000
	DefaultBatchSize  = 1000
	DefaultBumpBps    = 10.0
	DefaultMinTrials  = 1000
	DefaultMaxTrials  = 1000000
	DefaultMaxBatches = 10000
)

// SimulationConfig controls one Monte Carlo run
type SimulationConfig struct {
	Trials             int         `json:"trials" yaml:"trials"`
	Seed               uint64      `json:"seed" yaml:"seed"`
	Granularity        Granularity `json:"granularity,omitempty" yaml:"granularity"`
	BatchSize          int         `json:"batch_size,omitempty" yaml:"batch_size"`
	Workers            int         `json:"workers,omitempty" yaml:"workers"`
	ExportDistribution bool        `json:"export_distribution,omitempty" yaml:"export_distribution"`
	BumpBps            float64     `json:"bump_bps,omitempty" yaml:"bump_bps"`
}

// WithDefaults fills unset fields. Workers is left at 0 so the driver can
// apply its own default.
func (c SimulationConfig) WithDefaults() SimulationConfig {
	out := c
	if out.Trials == 0 {
		out.Trials = DefaultTrials
	}
	out.Granularity = Granularity(strings.ToLower(strings.TrimSpace(string(out.Granularity))))
	if out.Granularity == "" {
		out.Granularity = GranularityMonthly
	}
	if out.BatchSize == 0 {
		out.BatchSize = DefaultBatchSize
	}
	if out.BumpBps == 0 {
		out.BumpBps = DefaultBumpBps
	}
	return out
}

// Batches returns the number of batches the trials are split into
func (c SimulationConfig) Batches() int {
	if c.BatchSize <= 0 {
		return 0
	}
	return (c.Trials + c.BatchSize - 1) / c.BatchSize
}

// Limits bounds the work a driver accepts. Zero MaxBatches means no batch
// cap; zero MaxWorkers lets the driver cap parallelism at GOMAXPROCS.
type Limits struct {
	MinTrials  int
	MaxTrials  int
	MaxBatches int
	MaxWorkers int
}

// DefaultLimits returns the standard trial bounds
func DefaultLimits() Limits {
	return Limits{MinTrials: DefaultMinTrials, MaxTrials: DefaultMaxTrials, MaxBatches: DefaultMaxBatches}
}

// Validate checks the config against the driver limits
func (c SimulationConfig) Validate(limits Limits) error {
	if c.Trials <= 0 {
		return NewConfigurationError("config.trials", "must be positive, got %d", c.Trials)
	}
	if limits.MinTrials > 0 && c.Trials < limits.MinTrials {
		return NewConfigurationError("config.trials", "%d is below the minimum of %d required for a stable VaR estimate", c.Trials, limits.MinTrials)
	}
	if limits.MaxTrials > 0 && c.Trials > limits.MaxTrials {
		return NewConfigurationError("config.trials", "%d exceeds the maximum of %d", c.Trials, limits.MaxTrials)
	}
	if c.BatchSize <= 0 {
		return NewConfigurationError("config.batch_size", "must be positive, got %d", c.BatchSize)
	}
	if limits.MaxBatches > 0 && c.Batches() > limits.MaxBatches {
		return NewConfigurationError("config.batch_size", "%d trials in batches of %d make %d batches, above the maximum of %d",
			c.Trials, c.BatchSize, c.Batches(), limits.MaxBatches)
	}
	if c.Workers < 0 {
		return NewConfigurationError("config.workers", "must not be negative, got %d", c.Workers)
	}
	switch c.Granularity {
	case GranularityMonthly, GranularityQuarterly, GranularityAnnual:
	default:
		return NewConfigurationError("config.granularity", "unknown granularity %q", c.Granularity)
	}
	if math.IsNaN(c.BumpBps) || c.BumpBps <= 0 || c.BumpBps > 10000 {
		return NewConfigurationError("config.bump_bps", "must be in (0,10000], got %v", c.BumpBps)
	}
	return nil
}

// String is used in log lines
func (c SimulationConfig) String() string {
	return fmt.Sprintf("trials=%d seed=%d batch=%d granularity=%s", c.Trials, c.Seed, c.BatchSize, c.Granularity)
}
