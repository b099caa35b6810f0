package simulation

import (
	"math"
	"sort"

	"github.com/aristath/poolrisk/internal/domain"
	"github.com/aristath/poolrisk/internal/modules/aggregation"
	"github.com/aristath/poolrisk/internal/modules/sampling"
)

// batchResult is everything one batch contributes to the final report.
// Sums are kept per batch and reduced in batch order, so the floating-point
// result does not depend on which worker ran which batch.
type batchResult struct {
	index  int
	trials int

	losses   []float64 // sorted
	yieldSum float64

	trancheLosses    [][]float64 // per tranche, sorted
	trancheYieldSums []float64

	baseLossSum  float64
	upLossSum    float64
	downLossSum  float64
	upShiftSum   float64 // percent
	downShiftSum float64 // percent

	outcomes []domain.TrialOutcome // only when exporting
}

// plan is a validated, ready-to-execute run
type plan struct {
	pool     domain.PoolDescriptor
	scenario domain.ScenarioParameters
	config   domain.SimulationConfig
	workers  int

	sampler      *sampling.CopulaSampler
	model        *aggregation.Model
	degeneracies []domain.Degeneracy
}

// bumpPercent is the default-rate shift used for the sensitivities, in percent
func (p *plan) bumpPercent() float64 {
	return p.config.BumpBps / 100
}

// evaluateBatch runs trials [index*BatchSize, min((index+1)*BatchSize, Trials))
// on the batch's own random stream
func (p *plan) evaluateBatch(index int) *batchResult {
	start := index * p.config.BatchSize
	count := min(p.config.BatchSize, p.config.Trials-start)
	numTranches := p.model.Tranches()
	bump := p.bumpPercent()

	res := &batchResult{
		index:  index,
		trials: count,
		losses: make([]float64, count),
	}
	if numTranches > 0 {
		res.trancheLosses = make([][]float64, numTranches)
		for k := range res.trancheLosses {
			res.trancheLosses[k] = make([]float64, count)
		}
		res.trancheYieldSums = make([]float64, numTranches)
	}
	if p.config.ExportDistribution {
		res.outcomes = make([]domain.TrialOutcome, 0, count)
	}

	rng := sampling.NewStream(p.config.Seed, index)
	var out domain.TrialOutcome
	for i := 0; i < count; i++ {
		triple := p.sampler.Sample(rng)
		p.model.Evaluate(start+i, triple, &out)

		res.losses[i] = out.LossFraction
		res.yieldSum += out.Yield
		for k := 0; k < numTranches; k++ {
			res.trancheLosses[k][i] = out.TrancheLosses[k]
			res.trancheYieldSums[k] += out.TrancheYields[k]
		}

		up := triple
		up.DefaultRate = math.Min(triple.DefaultRate+bump, 100)
		down := triple
		down.DefaultRate = math.Max(triple.DefaultRate-bump, 0)
		res.baseLossSum += out.LossFraction
		res.upLossSum += p.model.Loss(up)
		res.downLossSum += p.model.Loss(down)
		res.upShiftSum += up.DefaultRate - triple.DefaultRate
		res.downShiftSum += triple.DefaultRate - down.DefaultRate

		if p.config.ExportDistribution {
			res.outcomes = append(res.outcomes, cloneOutcome(out))
		}
	}

	sort.Float64s(res.losses)
	for k := range res.trancheLosses {
		sort.Float64s(res.trancheLosses[k])
	}
	return res
}

func cloneOutcome(o domain.TrialOutcome) domain.TrialOutcome {
	c := o
	if o.TrancheLosses != nil {
		c.TrancheLosses = append([]float64(nil), o.TrancheLosses...)
		c.TrancheYields = append([]float64(nil), o.TrancheYields...)
	}
	return c
}
