package simulation

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Registry keeps asynchronous runs addressable by ID until they are evicted
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*Run
	log  zerolog.Logger
}

// NewRegistry creates an empty run registry
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		runs: make(map[string]*Run),
		log:  log.With().Str("component", "run_registry").Logger(),
	}
}

// Add registers a run
func (r *Registry) Add(run *Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
}

// Get returns the run with the given ID
func (r *Registry) Get(id string) (*Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// List returns all registered runs, newest first
func (r *Registry) List() []*Run {
	r.mu.RLock()
	runs := make([]*Run, 0, len(r.runs))
	for _, run := range r.runs {
		runs = append(runs, run)
	}
	r.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs
}

// Cancel requests cancellation of the run with the given ID
func (r *Registry) Cancel(id string) error {
	run, err := r.Get(id)
	if err != nil {
		return err
	}
	run.Cancel()
	r.log.Info().Str("run_id", id).Msg("Run cancellation requested")
	return nil
}

// Active returns the number of runs not yet in a terminal state
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	active := 0
	for _, run := range r.runs {
		if !run.Status().Terminal() {
			active++
		}
	}
	return active
}

// EvictFinishedBefore removes terminal runs that finished before cutoff and
// returns how many were removed. Runs in progress are never evicted.
func (r *Registry) EvictFinishedBefore(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, run := range r.runs {
		if run.finishedBefore(cutoff) {
			delete(r.runs, id)
			evicted++
		}
	}
	if evicted > 0 {
		r.log.Debug().Int("evicted", evicted).Int("remaining", len(r.runs)).Msg("Evicted finished runs")
	}
	return evicted
}
