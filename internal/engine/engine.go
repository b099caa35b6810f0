// Package engine is the entry point to the risk engine: it runs simulations,
// derives shadow ratings and records run metrics.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/poolrisk/internal/domain"
	"github.com/aristath/poolrisk/internal/metrics"
	"github.com/aristath/poolrisk/internal/modules/rating"
	"github.com/aristath/poolrisk/internal/modules/simulation"
)

// Engine wires the simulation driver to the rating provider
type Engine struct {
	driver  *simulation.Driver
	ratings *rating.Provider
	log     zerolog.Logger
}

// New creates a new engine
func New(driver *simulation.Driver, ratings *rating.Provider, log zerolog.Logger) *Engine {
	return &Engine{
		driver:  driver,
		ratings: ratings,
		log:     log.With().Str("component", "engine").Logger(),
	}
}

// Ratings returns the rating table provider
func (e *Engine) Ratings() *rating.Provider {
	return e.ratings
}

// Limits returns the trial bounds enforced by the driver
func (e *Engine) Limits() domain.Limits {
	return e.driver.Limits()
}

// RunSimulation runs a simulation synchronously and returns its report
func (e *Engine) RunSimulation(
	ctx context.Context,
	pool domain.PoolDescriptor,
	scenario domain.ScenarioParameters,
	cfg domain.SimulationConfig,
) (*domain.RiskReport, error) {
	result, err := e.Run(ctx, pool, scenario, cfg, nil)
	if err != nil {
		return nil, err
	}
	return result.Report, nil
}

// Run is RunSimulation with access to the full result and progress
func (e *Engine) Run(
	ctx context.Context,
	pool domain.PoolDescriptor,
	scenario domain.ScenarioParameters,
	cfg domain.SimulationConfig,
	progress simulation.ProgressFunc,
) (*simulation.Result, error) {
	result, err := e.driver.Run(ctx, pool, scenario, cfg, progress)
	e.record(result, err)
	return result, err
}

// Start launches an asynchronous run. The run outlives ctx's deadline but
// is cancelled if ctx itself is cancelled; pass context.Background() for a
// fully detached run.
func (e *Engine) Start(
	ctx context.Context,
	pool domain.PoolDescriptor,
	scenario domain.ScenarioParameters,
	cfg domain.SimulationConfig,
) (*simulation.Run, error) {
	run, err := e.driver.Start(ctx, pool, scenario, cfg)
	if err != nil {
		e.record(nil, err)
		return nil, err
	}

	metrics.ActiveRuns.Inc()
	go func() {
		<-run.Done()
		metrics.ActiveRuns.Dec()
		result, err := run.Result()
		e.record(result, err)
	}()
	return run, nil
}

// DeriveShadowRating maps a report onto the active rating table
func (e *Engine) DeriveShadowRating(report *domain.RiskReport) (domain.ShadowRating, error) {
	rated, err := e.ratings.Map(report)
	if err != nil {
		return domain.ShadowRating{}, fmt.Errorf("derive shadow rating: %w", err)
	}
	if len(report.Degeneracies) > 0 {
		e.log.Warn().
			Str("scenario", report.Scenario).
			Int("degeneracies", len(report.Degeneracies)).
			Msg("Rating a report with numerical degeneracies")
	}
	return rated, nil
}

// ScenarioResult is one row of a scenario comparison
type ScenarioResult struct {
	Scenario string              `json:"scenario"`
	Report   *domain.RiskReport  `json:"report"`
	Rating   domain.ShadowRating `json:"rating"`
}

// Compare runs every scenario against the same pool and seed, in order, and
// rates each report. The first error aborts the comparison.
func (e *Engine) Compare(
	ctx context.Context,
	pool domain.PoolDescriptor,
	scenarios []domain.ScenarioParameters,
	cfg domain.SimulationConfig,
) ([]ScenarioResult, error) {
	if len(scenarios) == 0 {
		return nil, domain.NewConfigurationError("scenarios", "at least one scenario is required")
	}

	results := make([]ScenarioResult, 0, len(scenarios))
	for _, scenario := range scenarios {
		report, err := e.RunSimulation(ctx, pool, scenario, cfg)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", scenario.Name, err)
		}
		rated, err := e.DeriveShadowRating(report)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", scenario.Name, err)
		}
		results = append(results, ScenarioResult{Scenario: scenario.Name, Report: report, Rating: rated})
	}
	return results, nil
}

// record updates the run metrics for a finished run
func (e *Engine) record(result *simulation.Result, err error) {
	switch {
	case err == nil && result != nil:
		metrics.SimulationsTotal.WithLabelValues(string(domain.RunCompleted)).Inc()
		metrics.SimulationDuration.Observe(result.Elapsed.Seconds())
		metrics.TrialsTotal.Add(float64(result.Report.Trials))
	case domain.IsConfigurationError(err):
		metrics.SimulationsTotal.WithLabelValues("rejected").Inc()
	case errors.Is(err, domain.ErrCancelled):
		metrics.SimulationsTotal.WithLabelValues(string(domain.RunCancelled)).Inc()
		var cancelled *domain.CancelledError
		if errors.As(err, &cancelled) {
			metrics.TrialsTotal.Add(float64(cancelled.Partial.CompletedTrials))
		}
	default:
		metrics.SimulationsTotal.WithLabelValues(string(domain.RunFailed)).Inc()
		e.log.Error().Err(err).Msg("Simulation failed")
	}
}

// ReloadRatingTable re-reads the rating table and records the attempt
func (e *Engine) ReloadRatingTable() error {
	if err := e.ratings.Reload(); err != nil {
		metrics.RatingTableReloads.WithLabelValues("error").Inc()
		return fmt.Errorf("reload rating table: %w", err)
	}
	metrics.RatingTableReloads.WithLabelValues("success").Inc()
	return nil
}
