package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/poolrisk/internal/config"
	"github.com/aristath/poolrisk/internal/domain"
	"github.com/aristath/poolrisk/internal/engine"
	"github.com/aristath/poolrisk/internal/modules/rating"
	"github.com/aristath/poolrisk/internal/modules/simulation"
	"github.com/aristath/poolrisk/internal/scheduler"
)

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Initialize services
// 2. Register jobs
// The scheduler is returned stopped; the caller starts it.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container, err := InitializeServices(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := RegisterJobs(container, cfg, log); err != nil {
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")

	return container, nil
}

// InitializeServices builds the rating provider, driver, engine and run registry
func InitializeServices(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	ratings, err := rating.NewProvider(cfg.RatingTablePath, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load rating table: %w", err)
	}

	driver := simulation.NewDriver(simulation.Options{
		Limits: domain.Limits{
			MinTrials:  cfg.Simulation.MinTrials,
			MaxTrials:  cfg.Simulation.MaxTrials,
			MaxBatches: cfg.Simulation.MaxBatches,
			MaxWorkers: cfg.Simulation.Workers,
		},
		Workers:   cfg.Simulation.Workers,
		BatchSize: cfg.Simulation.BatchSize,
	}, log)

	return &Container{
		Ratings:   ratings,
		Driver:    driver,
		Engine:    engine.New(driver, ratings, log),
		Registry:  simulation.NewRegistry(log),
		Scheduler: scheduler.New(log),
	}, nil
}
