// Package aggregation turns one sampled rate triple into the realized pool
// loss and yield for a trial, and allocates that loss through the tranche
// waterfall.
package aggregation

import (
	"math"

	"github.com/aristath/poolrisk/internal/domain"
	"github.com/aristath/poolrisk/internal/modules/sampling"
)

// Model evaluates trials for one pool. It is immutable after construction
// and safe for concurrent use.
type Model struct {
	termYears float64
	coupon    float64 // fraction

	fullPeriods int
	periodYears float64
	stubYears   float64

	tranches       []domain.Tranche // descriptor order
	trancheCoupons []float64        // fraction
}

// Cashflows is the mean-path result of running a triple through the pool
type Cashflows struct {
	// LossFraction is the cumulative credit loss over the term, as a fraction of original notional
	LossFraction float64
	// InterestFactor is the time-weighted average outstanding balance over the term (1 = never amortized)
	InterestFactor float64
}

// NewModel builds the trial model for a validated pool
func NewModel(pool domain.PoolDescriptor, granularity domain.Granularity) *Model {
	periodMonths := granularity.Months()
	full := pool.TermMonths / periodMonths
	stubMonths := pool.TermMonths % periodMonths

	m := &Model{
		termYears:   pool.TermYears(),
		coupon:      pool.CouponRate / 100,
		fullPeriods: full,
		periodYears: float64(periodMonths) / 12,
		stubYears:   float64(stubMonths) / 12,
	}

	if pool.HasTranches() {
		m.tranches = make([]domain.Tranche, len(pool.Tranches))
		copy(m.tranches, pool.Tranches)
		m.trancheCoupons = make([]float64, len(pool.Tranches))
		for i, t := range pool.Tranches {
			coupon := t.CouponRate
			if coupon == 0 {
				coupon = pool.CouponRate
			}
			m.trancheCoupons[i] = coupon / 100
		}
	}
	return m
}

// Tranches returns the number of tranches the model allocates to
func (m *Model) Tranches() int {
	return len(m.tranches)
}

// TermYears returns the pool term in years
func (m *Model) TermYears() float64 {
	return m.termYears
}

// Cashflows runs the balance schedule for one triple.
// Each period interest accrues on the opening balance, prepayments leave the
// pool first (prepaid principal cannot default), then defaults hit what is
// left and lose (1 - recovery) of their balance.
func (m *Model) Cashflows(t sampling.Triple) Cashflows {
	d := fraction(t.DefaultRate)
	p := fraction(t.PrepaymentRate)
	lgd := 1 - fraction(t.RecoveryRate)

	balance := 1.0
	loss := 0.0
	interest := 0.0

	step := func(dt float64, qd, qp float64) {
		interest += balance * dt
		prepaid := balance * qp
		defaulted := (balance - prepaid) * qd
		loss += defaulted * lgd
		balance -= prepaid + defaulted
	}

	if m.fullPeriods > 0 {
		qd := periodHazard(d, m.periodYears)
		qp := periodHazard(p, m.periodYears)
		for i := 0; i < m.fullPeriods; i++ {
			step(m.periodYears, qd, qp)
		}
	}
	if m.stubYears > 0 {
		step(m.stubYears, periodHazard(d, m.stubYears), periodHazard(p, m.stubYears))
	}

	return Cashflows{
		LossFraction:   loss,
		InterestFactor: interest / m.termYears,
	}
}

// Loss returns the cumulative portfolio loss fraction for one triple
func (m *Model) Loss(t sampling.Triple) float64 {
	return m.Cashflows(t).LossFraction
}

// Yield returns the realized annualized pool yield for one triple:
// contractual coupon on the time-weighted balance, less annualized loss.
func (m *Model) Yield(t sampling.Triple) float64 {
	cf := m.Cashflows(t)
	return m.coupon*cf.InterestFactor - cf.LossFraction/m.termYears
}

// Evaluate fills out with the trial-level outcome of t. Tranche slices on
// out are reused when they have the right length.
func (m *Model) Evaluate(index int, t sampling.Triple, out *domain.TrialOutcome) {
	cf := m.Cashflows(t)

	out.Index = index
	out.DefaultRate = t.DefaultRate
	out.RecoveryRate = t.RecoveryRate
	out.PrepaymentRate = t.PrepaymentRate
	out.LossFraction = cf.LossFraction
	out.Yield = m.coupon*cf.InterestFactor - cf.LossFraction/m.termYears

	if len(m.tranches) == 0 {
		out.TrancheLosses = nil
		out.TrancheYields = nil
		return
	}
	if len(out.TrancheLosses) != len(m.tranches) {
		out.TrancheLosses = make([]float64, len(m.tranches))
		out.TrancheYields = make([]float64, len(m.tranches))
	}
	m.allocate(cf, out.TrancheLosses, out.TrancheYields)
}

// allocate runs the waterfall: a tranche absorbs the part of the pool loss
// that falls between its attachment and detachment points, so the most
// subordinate tranche is hit first and excess cascades upward.
func (m *Model) allocate(cf Cashflows, losses, yields []float64) {
	for i, tr := range m.tranches {
		width := tr.Width()
		absorbed := math.Min(math.Max(cf.LossFraction-tr.Attachment, 0), width)
		losses[i] = absorbed / width
		yields[i] = m.trancheCoupons[i]*cf.InterestFactor - losses[i]/m.termYears
	}
}

// AllocateLoss returns the per-tranche loss fractions for a given pool loss
func (m *Model) AllocateLoss(poolLoss float64) []float64 {
	losses := make([]float64, len(m.tranches))
	yields := make([]float64, len(m.tranches))
	m.allocate(Cashflows{LossFraction: poolLoss, InterestFactor: 1}, losses, yields)
	return losses
}

// periodHazard converts an annual rate into the probability of the event
// within a period of dt years
func periodHazard(annual, dt float64) float64 {
	if annual >= 1 {
		return 1
	}
	return -math.Expm1(dt * math.Log1p(-annual))
}

func fraction(percent float64) float64 {
	return math.Min(math.Max(percent/100, 0), 1)
}
