package simulation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/poolrisk/internal/domain"
)

var (
	// ErrRunNotFound is returned for an unknown run ID
	ErrRunNotFound = errors.New("simulation run not found")
	// ErrRunNotComplete is returned when a finished result is requested from a run still in progress
	ErrRunNotComplete = errors.New("simulation run has not completed")
)

// Run is the handle of an asynchronous simulation
type Run struct {
	ID        string
	Pool      string
	Scenario  string
	Config    domain.SimulationConfig
	CreatedAt time.Time

	total     int
	completed atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.RWMutex
	status     domain.RunStatus
	result     *Result
	err        error
	finishedAt time.Time
}

// RunSnapshot is a point-in-time view of a Run, safe to serialize
type RunSnapshot struct {
	ID              string             `json:"id"`
	Pool            string             `json:"pool"`
	Scenario        string             `json:"scenario"`
	Status          domain.RunStatus   `json:"status"`
	CompletedTrials int                `json:"completed_trials"`
	TotalTrials     int                `json:"total_trials"`
	Progress        float64            `json:"progress"`
	CreatedAt       time.Time          `json:"created_at"`
	FinishedAt      *time.Time         `json:"finished_at,omitempty"`
	Report          *domain.RiskReport `json:"report,omitempty"`
	Partial         *domain.Partial    `json:"partial,omitempty"`
	Error           string             `json:"error,omitempty"`
}

// Start validates the inputs and launches the run in the background. The run
// lives until it completes, fails, or ctx or Cancel stops it; it does not
// inherit the lifetime of the request that started it unless ctx says so.
func (d *Driver) Start(
	ctx context.Context,
	pool domain.PoolDescriptor,
	scenario domain.ScenarioParameters,
	cfg domain.SimulationConfig,
) (*Run, error) {
	p, err := d.prepare(pool, scenario, cfg)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &Run{
		ID:        uuid.New().String(),
		Pool:      p.pool.Name,
		Scenario:  p.scenario.Name,
		Config:    p.config,
		CreatedAt: time.Now(),
		total:     p.config.Trials,
		cancel:    cancel,
		done:      make(chan struct{}),
		status:    domain.RunPending,
	}

	go func() {
		defer cancel()
		run.setStatus(domain.RunRunning)
		result, err := d.execute(runCtx, p, func(completed, _ int) {
			run.completed.Store(int64(completed))
		})
		run.finish(result, err)
	}()

	return run, nil
}

// Done is closed when the run reaches a terminal state
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Cancel requests cancellation; the run stops at the next batch boundary
func (r *Run) Cancel() {
	r.cancel()
}

// Wait blocks until the run finishes or ctx is done
func (r *Run) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-r.done:
		r.mu.RLock()
		defer r.mu.RUnlock()
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Status returns the current lifecycle state
func (r *Run) Status() domain.RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Result returns the finished result, or ErrRunNotComplete while the run is
// in progress. A cancelled or failed run returns its error.
func (r *Run) Result() (*Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch r.status {
	case domain.RunCompleted:
		return r.result, nil
	case domain.RunCancelled, domain.RunFailed:
		return nil, r.err
	default:
		return nil, ErrRunNotComplete
	}
}

// Snapshot returns a consistent view of the run
func (r *Run) Snapshot() RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	completed := int(r.completed.Load())
	snap := RunSnapshot{
		ID:              r.ID,
		Pool:            r.Pool,
		Scenario:        r.Scenario,
		Status:          r.status,
		CompletedTrials: completed,
		TotalTrials:     r.total,
		CreatedAt:       r.CreatedAt,
	}
	if r.total > 0 {
		snap.Progress = float64(completed) / float64(r.total)
	}
	if !r.finishedAt.IsZero() {
		finished := r.finishedAt
		snap.FinishedAt = &finished
	}
	if r.result != nil {
		snap.Report = r.result.Report
	}
	if r.err != nil {
		snap.Error = r.err.Error()
		var cancelled *domain.CancelledError
		if errors.As(r.err, &cancelled) {
			partial := cancelled.Partial
			snap.Partial = &partial
		}
	}
	return snap
}

func (r *Run) setStatus(status domain.RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
}

func (r *Run) finish(result *Result, err error) {
	r.mu.Lock()
	r.result = result
	r.err = err
	r.finishedAt = time.Now()
	switch {
	case err == nil:
		r.status = domain.RunCompleted
	case errors.Is(err, domain.ErrCancelled):
		r.status = domain.RunCancelled
	default:
		r.status = domain.RunFailed
	}
	r.mu.Unlock()
	close(r.done)
}

// finishedBefore reports whether the run reached a terminal state before t
func (r *Run) finishedBefore(t time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status.Terminal() && r.finishedAt.Before(t)
}
