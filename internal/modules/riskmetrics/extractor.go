package riskmetrics

import (
	"github.com/rs/zerolog"

	"github.com/aristath/poolrisk/internal/domain"
)

// Distribution is the merged output of a completed run, as handed over by
// the simulation driver. Loss slices are sorted ascending.
type Distribution struct {
	Scenario domain.ScenarioParameters // normalized
	Config   domain.SimulationConfig

	Losses   []float64
	YieldSum float64

	// Bumped pool loss sums over all trials, for the sensitivities
	BaseLossSum float64
	UpLossSum   float64
	DownLossSum float64

	// Realized default-rate shifts summed over all trials, fractions
	UpShiftSum   float64
	DownShiftSum float64

	Tranches []TrancheDistribution

	// YieldAt evaluates the pool yield on the mean path for a given
	// default-rate mean in percent
	YieldAt func(defaultMean float64) float64

	Degeneracies []domain.Degeneracy
}

// TrancheDistribution is the merged per-tranche output of a run
type TrancheDistribution struct {
	Tranche  domain.Tranche
	Losses   []float64 // sorted ascending
	YieldSum float64
}

// Extractor derives risk reports from merged distributions
type Extractor struct {
	log zerolog.Logger
}

// NewExtractor creates a new metric extractor
func NewExtractor(log zerolog.Logger) *Extractor {
	return &Extractor{
		log: log.With().Str("component", "risk_metrics").Logger(),
	}
}

// Extract builds the RiskReport for d. Numerical degeneracies make individual
// fields undefined and are listed in the report; they never fail the call.
func (e *Extractor) Extract(d Distribution) *domain.RiskReport {
	n := len(d.Losses)
	levels := d.Scenario.ConfidenceLevels
	if len(levels) == 0 {
		levels = domain.DefaultConfidenceLevels
	}

	report := &domain.RiskReport{
		Scenario:     d.Scenario.Name,
		Trials:       n,
		Seed:         d.Config.Seed,
		ExpectedLoss: Mean(d.Losses),
		LossStdDev:   StdDev(d.Losses),
		VaR:          VaRCurve(d.Losses, levels),
	}
	report.Degeneracies = append(report.Degeneracies, d.Degeneracies...)

	tailVaR := ValueAtRisk(d.Losses, domain.TailConfidence)
	report.TailRisk = ExpectedShortfall(d.Losses, tailVaR)
	if n > 0 {
		report.ExpectedReturn = d.YieldSum / float64(n)
	}

	if n > 0 {
		var degeneracies []domain.Degeneracy
		report.Duration, report.Convexity, degeneracies = Sensitivities(
			d.BaseLossSum/float64(n),
			d.UpLossSum/float64(n),
			d.DownLossSum/float64(n),
			d.UpShiftSum/float64(n),
			d.DownShiftSum/float64(n),
		)
		report.Degeneracies = append(report.Degeneracies, degeneracies...)
	}

	if d.YieldAt != nil {
		breakeven, degeneracy := Breakeven(d.YieldAt)
		report.BreakevenDefaultRate = breakeven
		if degeneracy != nil {
			report.Degeneracies = append(report.Degeneracies, *degeneracy)
		}
	} else {
		report.BreakevenDefaultRate = domain.UndefinedMetric()
	}

	for _, td := range d.Tranches {
		report.Tranches = append(report.Tranches, e.trancheReport(td, levels))
	}

	e.log.Debug().
		Str("scenario", report.Scenario).
		Int("trials", n).
		Float64("expected_loss", report.ExpectedLoss).
		Float64("tail_risk", report.TailRisk).
		Int("degeneracies", len(report.Degeneracies)).
		Msg("Risk metrics extracted")

	return report
}

func (e *Extractor) trancheReport(td TrancheDistribution, levels []float64) domain.TrancheReport {
	n := len(td.Losses)
	tailVaR := ValueAtRisk(td.Losses, domain.TailConfidence)

	tr := domain.TrancheReport{
		Name:            td.Tranche.Name,
		Seniority:       td.Tranche.Seniority,
		Attachment:      td.Tranche.Attachment,
		Detachment:      td.Tranche.Detachment,
		ExpectedLoss:    Mean(td.Losses),
		VaR:             VaRCurve(td.Losses, levels),
		TailRisk:        ExpectedShortfall(td.Losses, tailVaR),
		LossProbability: LossProbability(td.Losses),
	}
	if n > 0 {
		tr.ExpectedReturn = td.YieldSum / float64(n)
	}
	return tr
}
