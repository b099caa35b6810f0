package scheduler

import (
	"time"

	"github.com/rs/zerolog"
)

// Job names
const (
	RatingTableReloadJobName = "rating_table_reload"
	RunCleanupJobName        = "run_cleanup"
)

// RatingTableReloader re-reads the rating threshold table
type RatingTableReloader interface {
	ReloadRatingTable() error
}

// RunEvictor drops finished runs from memory
type RunEvictor interface {
	EvictFinishedBefore(cutoff time.Time) int
}

// RatingTableReloadJob picks up edits to the rating table file without a restart
type RatingTableReloadJob struct {
	reloader RatingTableReloader
	log      zerolog.Logger
}

// NewRatingTableReloadJob creates the reload job
func NewRatingTableReloadJob(reloader RatingTableReloader, log zerolog.Logger) *RatingTableReloadJob {
	return &RatingTableReloadJob{
		reloader: reloader,
		log:      log.With().Str("job", RatingTableReloadJobName).Logger(),
	}
}

// Name implements Job
func (j *RatingTableReloadJob) Name() string {
	return RatingTableReloadJobName
}

// Run implements Job
func (j *RatingTableReloadJob) Run() error {
	return j.reloader.ReloadRatingTable()
}

// RunCleanupJob evicts runs that finished longer than the retention ago
type RunCleanupJob struct {
	runs      RunEvictor
	retention time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewRunCleanupJob creates the cleanup job
func NewRunCleanupJob(runs RunEvictor, retention time.Duration, log zerolog.Logger) *RunCleanupJob {
	return &RunCleanupJob{
		runs:      runs,
		retention: retention,
		now:       time.Now,
		log:       log.With().Str("job", RunCleanupJobName).Logger(),
	}
}

// Name implements Job
func (j *RunCleanupJob) Name() string {
	return RunCleanupJobName
}

// Run implements Job
func (j *RunCleanupJob) Run() error {
	cutoff := j.now().Add(-j.retention)
	evicted := j.runs.EvictFinishedBefore(cutoff)
	if evicted > 0 {
		j.log.Info().
			Int("evicted", evicted).
			Time("cutoff", cutoff).
			Msg("Evicted finished runs")
	}
	return nil
}
