// Package simulation drives Monte Carlo runs: it splits trials into fixed
// batches, evaluates them in parallel, merges the batch distributions exactly
// and hands the result to the risk metric extractor.
package simulation

import (
	"context"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/poolrisk/internal/domain"
	"github.com/aristath/poolrisk/internal/modules/aggregation"
	"github.com/aristath/poolrisk/internal/modules/riskmetrics"
	"github.com/aristath/poolrisk/internal/modules/sampling"
)

// ProgressFunc is called on the collecting goroutine after every batch
type ProgressFunc func(completedTrials, totalTrials int)

// Result is the output of a completed run
type Result struct {
	Report   *domain.RiskReport
	Outcomes []domain.TrialOutcome // in trial order, only when exported
	Elapsed  time.Duration
}

// Options configures a Driver
type Options struct {
	Limits    domain.Limits
	Workers   int // default parallelism when a run does not set one; 0 = GOMAXPROCS
	BatchSize int // default batch size when a run does not set one; 0 = domain.DefaultBatchSize
}

// Driver executes simulation runs. It holds no per-run state and is safe for
// concurrent use.
type Driver struct {
	limits    domain.Limits
	workers   int
	batchSize int
	extractor *riskmetrics.Extractor
	log       zerolog.Logger
}

// NewDriver creates a new simulation driver
func NewDriver(opts Options, log zerolog.Logger) *Driver {
	if opts.Limits == (domain.Limits{}) {
		opts.Limits = domain.DefaultLimits()
	}
	return &Driver{
		limits:    opts.Limits,
		workers:   opts.Workers,
		batchSize: opts.BatchSize,
		extractor: riskmetrics.NewExtractor(log),
		log:       log.With().Str("component", "simulation_driver").Logger(),
	}
}

// Limits returns the trial bounds the driver enforces
func (d *Driver) Limits() domain.Limits {
	return d.limits
}

// Run executes a simulation synchronously. Configuration errors are returned
// before any trial is evaluated. When ctx is cancelled the run stops at the
// next batch boundary and returns a *domain.CancelledError.
func (d *Driver) Run(
	ctx context.Context,
	pool domain.PoolDescriptor,
	scenario domain.ScenarioParameters,
	cfg domain.SimulationConfig,
	progress ProgressFunc,
) (*Result, error) {
	p, err := d.prepare(pool, scenario, cfg)
	if err != nil {
		return nil, err
	}
	return d.execute(ctx, p, progress)
}

// prepare validates inputs and builds the immutable per-run state
func (d *Driver) prepare(
	pool domain.PoolDescriptor,
	scenario domain.ScenarioParameters,
	cfg domain.SimulationConfig,
) (*plan, error) {
	if err := pool.Validate(); err != nil {
		return nil, err
	}
	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	scenario = scenario.Normalized()

	if cfg.BatchSize == 0 {
		cfg.BatchSize = d.batchSize
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(d.limits); err != nil {
		return nil, err
	}

	sampler, degeneracies, err := sampling.NewCopulaSampler(scenario)
	if err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers == 0 {
		workers = d.workers
	}
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if ceiling := d.maxWorkers(); workers > ceiling {
		d.log.Debug().Int("requested", workers).Int("ceiling", ceiling).Msg("Capping simulation workers")
		workers = ceiling
	}

	return &plan{
		pool:         pool,
		scenario:     scenario,
		config:       cfg,
		workers:      workers,
		sampler:      sampler,
		model:        aggregation.NewModel(pool, cfg.Granularity),
		degeneracies: degeneracies,
	}, nil
}

// maxWorkers is the parallelism ceiling for a single run
func (d *Driver) maxWorkers() int {
	if d.limits.MaxWorkers > 0 {
		return d.limits.MaxWorkers
	}
	return runtime.GOMAXPROCS(0)
}

func (d *Driver) execute(ctx context.Context, p *plan, progress ProgressFunc) (*Result, error) {
	start := time.Now()
	numBatches := p.config.Batches()

	d.log.Info().
		Str("pool", p.pool.Name).
		Str("scenario", p.scenario.Name).
		Int("trials", p.config.Trials).
		Int("batches", numBatches).
		Int("workers", p.workers).
		Uint64("seed", p.config.Seed).
		Msg("Starting simulation")

	batches := make([]*batchResult, numBatches)
	completed := 0
	newWorkerPool(p.workers).run(ctx, numBatches, p.evaluateBatch, func(res *batchResult) {
		batches[res.index] = res
		completed += res.trials
		if progress != nil {
			progress(completed, p.config.Trials)
		}
	})

	if completed < p.config.Trials {
		partial := domain.Partial{CompletedTrials: completed, TotalTrials: p.config.Trials}
		d.log.Warn().
			Str("scenario", p.scenario.Name).
			Int("completed_trials", completed).
			Int("total_trials", p.config.Trials).
			Msg("Simulation cancelled")
		return nil, &domain.CancelledError{Partial: partial}
	}

	dist := p.merge(batches)
	report := d.extractor.Extract(dist)

	result := &Result{Report: report, Elapsed: time.Since(start)}
	if p.config.ExportDistribution {
		result.Outcomes = make([]domain.TrialOutcome, 0, p.config.Trials)
		for _, b := range batches {
			result.Outcomes = append(result.Outcomes, b.outcomes...)
		}
	}

	d.log.Info().
		Str("scenario", p.scenario.Name).
		Int("trials", report.Trials).
		Float64("expected_loss", report.ExpectedLoss).
		Float64("tail_risk", report.TailRisk).
		Dur("elapsed", result.Elapsed).
		Msg("Simulation completed")

	return result, nil
}

// merge combines the batch results in batch order
func (p *plan) merge(batches []*batchResult) riskmetrics.Distribution {
	numTranches := p.model.Tranches()

	lossRuns := make([][]float64, len(batches))
	trancheRuns := make([][][]float64, numTranches)
	for k := range trancheRuns {
		trancheRuns[k] = make([][]float64, len(batches))
	}
	trancheYieldSums := make([]float64, numTranches)

	dist := riskmetrics.Distribution{
		Scenario:     p.scenario,
		Config:       p.config,
		Degeneracies: p.degeneracies,
	}
	for i, b := range batches {
		lossRuns[i] = b.losses
		dist.YieldSum += b.yieldSum
		dist.BaseLossSum += b.baseLossSum
		dist.UpLossSum += b.upLossSum
		dist.DownLossSum += b.downLossSum
		dist.UpShiftSum += b.upShiftSum / 100
		dist.DownShiftSum += b.downShiftSum / 100
		for k := 0; k < numTranches; k++ {
			trancheRuns[k][i] = b.trancheLosses[k]
			trancheYieldSums[k] += b.trancheYieldSums[k]
		}
	}
	dist.Losses = mergeSorted(lossRuns)

	for k, tr := range p.pool.Tranches {
		dist.Tranches = append(dist.Tranches, riskmetrics.TrancheDistribution{
			Tranche:  tr,
			Losses:   mergeSorted(trancheRuns[k]),
			YieldSum: trancheYieldSums[k],
		})
	}

	means := p.sampler.Means()
	model := p.model
	dist.YieldAt = func(defaultMean float64) float64 {
		return model.Yield(sampling.Triple{
			DefaultRate:    defaultMean,
			RecoveryRate:   means.RecoveryRate,
			PrepaymentRate: means.PrepaymentRate,
		})
	}
	return dist
}
