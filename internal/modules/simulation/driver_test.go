package simulation

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/poolrisk/internal/domain"
	"github.com/aristath/poolrisk/internal/modules/aggregation"
	"github.com/aristath/poolrisk/internal/modules/sampling"
)

func testPool() domain.PoolDescriptor {
	return domain.PoolDescriptor{
		Name:       "Consumer Loan Pool 2026-1",
		Notional:   decimal.NewFromInt(125_000_000),
		TermMonths: 36,
		Currency:   domain.CurrencyEUR,
		CouponRate: 8.5,
		Tranches: []domain.Tranche{
			{Name: "Senior A", Seniority: 1, Share: 0.80, Attachment: 0.20, Detachment: 1.00},
			{Name: "Mezzanine B", Seniority: 2, Share: 0.15, Attachment: 0.05, Detachment: 0.20, CouponRate: 11},
			{Name: "Equity", Seniority: 3, Share: 0.05, Attachment: 0.00, Detachment: 0.05, CouponRate: 15},
		},
	}
}

func baseScenario() domain.ScenarioParameters {
	return domain.ScenarioParameters{
		Name:           "base",
		DefaultRate:    domain.DistributionSpec{Mean: 1.2, Std: 0.3},
		RecoveryRate:   domain.DistributionSpec{Mean: 89.5, Std: 5.2},
		PrepaymentRate: domain.DistributionSpec{Mean: 12.3, Std: 2.1},
		Correlation:    0.15,
	}
}

func stressScenario() domain.ScenarioParameters {
	return domain.ScenarioParameters{
		Name:           "stress",
		DefaultRate:    domain.DistributionSpec{Mean: 4.8, Std: 1.5},
		RecoveryRate:   domain.DistributionSpec{Mean: 75, Std: 8},
		PrepaymentRate: domain.DistributionSpec{Mean: 6, Std: 2},
		Correlation:    0.35,
	}
}

func newTestDriver() *Driver {
	return NewDriver(Options{Limits: domain.Limits{MinTrials: 1000, MaxTrials: 1_000_000}}, zerolog.Nop())
}

func TestRun_DeterministicAcrossWorkerCounts(t *testing.T) {
	d := newTestDriver()
	cfg := domain.SimulationConfig{Trials: 5000, Seed: 42, BatchSize: 500}

	cfg.Workers = 1
	single, err := d.Run(context.Background(), testPool(), baseScenario(), cfg, nil)
	require.NoError(t, err)

	cfg.Workers = 4
	parallel, err := d.Run(context.Background(), testPool(), baseScenario(), cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, single.Report, parallel.Report)
}

func TestRun_SeedControlsOutput(t *testing.T) {
	d := newTestDriver()
	cfg := domain.SimulationConfig{Trials: 2000, Seed: 7}

	a, err := d.Run(context.Background(), testPool(), baseScenario(), cfg, nil)
	require.NoError(t, err)
	b, err := d.Run(context.Background(), testPool(), baseScenario(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, a.Report, b.Report)

	cfg.Seed = 8
	c, err := d.Run(context.Background(), testPool(), baseScenario(), cfg, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.Report.ExpectedLoss, c.Report.ExpectedLoss)
}

func TestRun_ZeroVarianceIsDeterministic(t *testing.T) {
	scenario := baseScenario()
	scenario.DefaultRate.Std = 0
	scenario.RecoveryRate.Std = 0
	scenario.PrepaymentRate.Std = 0

	d := newTestDriver()
	result, err := d.Run(context.Background(), testPool(), scenario, domain.SimulationConfig{Trials: 1000, Seed: 1}, nil)
	require.NoError(t, err)

	model := aggregation.NewModel(testPool(), domain.GranularityMonthly)
	want := model.Loss(sampling.Triple{DefaultRate: 1.2, RecoveryRate: 89.5, PrepaymentRate: 12.3})

	report := result.Report
	assert.Equal(t, want, report.ExpectedLoss)
	assert.Equal(t, 0.0, report.LossStdDev)
	for _, v := range report.VaR {
		assert.Equal(t, want, v.Loss)
	}
	assert.Equal(t, want, report.TailRisk)
}

func TestRun_VaRMonotoneAndTailBeyondVaR(t *testing.T) {
	scenario := baseScenario()
	scenario.ConfidenceLevels = []float64{0.995, 0.9, 0.95}

	d := newTestDriver()
	result, err := d.Run(context.Background(), testPool(), scenario, domain.SimulationConfig{Trials: 10000, Seed: 3}, nil)
	require.NoError(t, err)

	report := result.Report
	require.Len(t, report.VaR, 4, "0.99 is always added")
	for i := 1; i < len(report.VaR); i++ {
		assert.Less(t, report.VaR[i-1].Confidence, report.VaR[i].Confidence)
		assert.LessOrEqual(t, report.VaR[i-1].Loss, report.VaR[i].Loss)
	}

	var99, ok := report.VaRAt(0.99)
	require.True(t, ok)
	assert.GreaterOrEqual(t, report.TailRisk, var99)
	assert.Greater(t, report.ExpectedReturn, 0.0)
	assert.True(t, report.Duration.Defined)
	assert.Greater(t, report.Duration.Value, 0.0, "pool value falls as defaults rise")
	assert.True(t, report.BreakevenDefaultRate.Defined)
}

func TestRun_TrancheOrdering(t *testing.T) {
	d := newTestDriver()
	result, err := d.Run(context.Background(), testPool(), stressScenario(), domain.SimulationConfig{Trials: 5000, Seed: 5}, nil)
	require.NoError(t, err)

	report := result.Report
	require.Len(t, report.Tranches, 3)
	senior, mezz, equity := report.Tranches[0], report.Tranches[1], report.Tranches[2]

	assert.LessOrEqual(t, senior.ExpectedLoss, mezz.ExpectedLoss)
	assert.LessOrEqual(t, mezz.ExpectedLoss, equity.ExpectedLoss)
	assert.GreaterOrEqual(t, equity.ExpectedLoss, report.ExpectedLoss)
	assert.LessOrEqual(t, senior.ExpectedLoss, report.ExpectedLoss)

	weighted := 0.0
	for i, tr := range testPool().Tranches {
		weighted += tr.Share * report.Tranches[i].ExpectedLoss
	}
	assert.InDelta(t, report.ExpectedLoss, weighted, 1e-9)
}

func TestRun_StressWorseThanBaseAtEveryLevel(t *testing.T) {
	d := newTestDriver()
	cfg := domain.SimulationConfig{Trials: 10000, Seed: 11}

	base, err := d.Run(context.Background(), testPool(), baseScenario(), cfg, nil)
	require.NoError(t, err)
	stress, err := d.Run(context.Background(), testPool(), stressScenario(), cfg, nil)
	require.NoError(t, err)

	require.Len(t, stress.Report.VaR, len(base.Report.VaR))
	for i := range base.Report.VaR {
		assert.Greater(t, stress.Report.VaR[i].Loss, base.Report.VaR[i].Loss,
			"confidence %v", base.Report.VaR[i].Confidence)
	}
	assert.Greater(t, stress.Report.ExpectedLoss, base.Report.ExpectedLoss)
	assert.Greater(t, stress.Report.TailRisk, base.Report.TailRisk)
}

func TestRun_EstimatesConverge(t *testing.T) {
	d := newTestDriver()
	spread := func(trials int) float64 {
		estimates := make([]float64, 0, 8)
		for seed := uint64(1); seed <= 8; seed++ {
			result, err := d.Run(context.Background(), testPool(), stressScenario(),
				domain.SimulationConfig{Trials: trials, Seed: seed}, nil)
			require.NoError(t, err)
			estimates = append(estimates, result.Report.ExpectedLoss)
		}
		return stat.StdDev(estimates, nil)
	}

	assert.Less(t, spread(20000), spread(1000))
}

func TestRun_RejectsBadConfiguration(t *testing.T) {
	badPool := testPool()
	badPool.Tranches[0].Attachment = 0.3

	badScenario := baseScenario()
	badScenario.Correlation = 1.2

	tests := []struct {
		name     string
		pool     domain.PoolDescriptor
		scenario domain.ScenarioParameters
		cfg      domain.SimulationConfig
	}{
		{"below minimum trials", testPool(), baseScenario(), domain.SimulationConfig{Trials: 999}},
		{"above maximum trials", testPool(), baseScenario(), domain.SimulationConfig{Trials: 2_000_000}},
		{"unknown granularity", testPool(), baseScenario(), domain.SimulationConfig{Trials: 1000, Granularity: "weekly"}},
		{"tranche gap", badPool, baseScenario(), domain.SimulationConfig{Trials: 1000}},
		{"correlation out of range", testPool(), badScenario, domain.SimulationConfig{Trials: 1000}},
	}

	d := newTestDriver()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			_, err := d.Run(context.Background(), tt.pool, tt.scenario, tt.cfg, func(int, int) { called = true })
			require.Error(t, err)
			assert.True(t, domain.IsConfigurationError(err))
			assert.False(t, called, "no batch may run on invalid input")
		})
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := newTestDriver()
	result, err := d.Run(ctx, testPool(), baseScenario(), domain.SimulationConfig{Trials: 5000, Seed: 1}, nil)
	assert.Nil(t, result)

	var cancelled *domain.CancelledError
	require.True(t, errors.As(err, &cancelled))
	assert.True(t, errors.Is(err, domain.ErrCancelled))
	assert.Equal(t, 0, cancelled.Partial.CompletedTrials)
	assert.Equal(t, 5000, cancelled.Partial.TotalTrials)
}

func TestRun_CancelledMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := newTestDriver()
	cfg := domain.SimulationConfig{Trials: 100_000, Seed: 1, BatchSize: 500, Workers: 1}
	result, err := d.Run(ctx, testPool(), baseScenario(), cfg, func(completed, total int) {
		cancel()
	})
	assert.Nil(t, result)

	var cancelled *domain.CancelledError
	require.True(t, errors.As(err, &cancelled))
	assert.Greater(t, cancelled.Partial.CompletedTrials, 0)
	assert.Less(t, cancelled.Partial.CompletedTrials, 100_000)
	assert.Zero(t, cancelled.Partial.CompletedTrials%500, "cancellation happens on batch boundaries")
}

func TestRun_ExportDistribution(t *testing.T) {
	d := newTestDriver()
	cfg := domain.SimulationConfig{Trials: 2500, Seed: 9, BatchSize: 1000, ExportDistribution: true, Workers: 3}

	result, err := d.Run(context.Background(), testPool(), baseScenario(), cfg, nil)
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 2500)

	sum := 0.0
	for i, o := range result.Outcomes {
		assert.Equal(t, i, o.Index)
		assert.Len(t, o.TrancheLosses, 3)
		sum += o.LossFraction
	}
	assert.InDelta(t, result.Report.ExpectedLoss, sum/2500, 1e-12)
}

func TestRun_ProgressReachesTotal(t *testing.T) {
	d := newTestDriver()
	var last, calls int
	_, err := d.Run(context.Background(), testPool(), baseScenario(),
		domain.SimulationConfig{Trials: 3500, Seed: 2, BatchSize: 1000},
		func(completed, total int) {
			calls++
			assert.Equal(t, 3500, total)
			assert.Greater(t, completed, last)
			last = completed
		})
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 3500, last)
}

func TestRun_DriverBatchSizeDefault(t *testing.T) {
	cfg := domain.SimulationConfig{Trials: 2000, Seed: 3}

	small := NewDriver(Options{BatchSize: 250}, zerolog.Nop())
	explicit := newTestDriver()

	viaDefault, err := small.Run(context.Background(), testPool(), baseScenario(), cfg, nil)
	require.NoError(t, err)

	cfg.BatchSize = 250
	viaConfig, err := explicit.Run(context.Background(), testPool(), baseScenario(), cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, viaConfig.Report, viaDefault.Report)
}

func TestPrepare_BoundsParallelism(t *testing.T) {
	d := NewDriver(Options{Limits: domain.Limits{
		MinTrials:  1000,
		MaxTrials:  1_000_000,
		MaxBatches: 500,
		MaxWorkers: 2,
	}}, zerolog.Nop())

	p, err := d.prepare(testPool(), baseScenario(), domain.SimulationConfig{Trials: 200_000, BatchSize: 1000, Workers: 200_000})
	require.NoError(t, err)
	assert.Equal(t, 2, p.workers)

	_, err = d.prepare(testPool(), baseScenario(), domain.SimulationConfig{Trials: 200_000, BatchSize: 1, Workers: 200_000})
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "config.batch_size", cfgErr.Field)
}

func TestPrepare_WorkersDefaultToGOMAXPROCSCeiling(t *testing.T) {
	p, err := newTestDriver().prepare(testPool(), baseScenario(), domain.SimulationConfig{Trials: 5000, Workers: 1_000_000})
	require.NoError(t, err)
	assert.Equal(t, runtime.GOMAXPROCS(0), p.workers)
}

func TestRun_SensitivitiesAtZeroDefaultRate(t *testing.T) {
	scenario := baseScenario()
	scenario.DefaultRate = domain.DistributionSpec{Mean: 0, Std: 0}

	res, err := newTestDriver().Run(context.Background(), testPool(), scenario,
		domain.SimulationConfig{Trials: 2000, Seed: 5}, nil)
	require.NoError(t, err)

	report := res.Report
	require.True(t, report.Duration.Defined, "one-sided difference still gives a duration")
	assert.Greater(t, report.Duration.Value, 0.0)
	assert.False(t, report.Convexity.Defined)

	fields := make([]string, 0, len(report.Degeneracies))
	for _, d := range report.Degeneracies {
		fields = append(fields, d.Field)
	}
	assert.Contains(t, fields, "convexity")
}
