package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/poolrisk/internal/config"
	"github.com/aristath/poolrisk/internal/scheduler"
)

// RegisterJobs adds the background jobs to the container's scheduler.
// The rating table reload job is only registered when a schedule is set.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	cleanup := scheduler.NewRunCleanupJob(container.Registry, cfg.RunRetention, log)
	if err := container.Scheduler.AddJob(cfg.RunCleanupSchedule, cleanup); err != nil {
		return fmt.Errorf("failed to register %s job: %w", cleanup.Name(), err)
	}

	if cfg.RatingTableReload != "" {
		reload := scheduler.NewRatingTableReloadJob(container.Engine, log)
		if err := container.Scheduler.AddJob(cfg.RatingTableReload, reload); err != nil {
			return fmt.Errorf("failed to register %s job: %w", reload.Name(), err)
		}
	}
	return nil
}
