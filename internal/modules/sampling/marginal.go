// Package sampling draws correlated default, recovery and prepayment rates
// from their configured marginal distributions under a single-factor
// Gaussian copula.
package sampling

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/poolrisk/internal/domain"
)

// fallbackConcentration is the alpha+beta used when the configured std is too
// large for any Beta with the configured mean. It keeps the mean and gives a
// variance of m(1-m)/2.
const fallbackConcentration = 1.0

// Marginal maps a uniform variate onto a rate in percent.
// Implementations are selected once per run by NewMarginal.
type Marginal interface {
	// Quantile returns the inverse CDF at u, in percent
	Quantile(u float64) float64
	// Mean returns the configured mean, in percent
	Mean() float64
	// Degenerate reports whether the marginal is a point mass
	Degenerate() bool
}

// NewMarginal builds the marginal for spec. field names the scenario field
// for error and degeneracy reporting. A non-nil Degeneracy means the
// configured moments could not be matched exactly and a fallback was used.
func NewMarginal(spec domain.DistributionSpec, field string) (Marginal, *domain.Degeneracy, error) {
	if math.IsNaN(spec.Std) || spec.Std < 0 {
		return nil, nil, domain.NewConfigurationError(field+".std", "must not be negative, got %v", spec.Std)
	}
	if math.IsNaN(spec.Mean) || spec.Mean < 0 || spec.Mean > 100 {
		return nil, nil, domain.NewConfigurationError(field+".mean", "must be within [0,100], got %v", spec.Mean)
	}

	switch spec.Family {
	case domain.FamilyBeta:
		return newBetaMarginal(spec, field)
	case domain.FamilyNormal:
		return newNormalMarginal(spec), nil, nil
	case domain.FamilyLognormal:
		return newLognormalMarginal(spec, field)
	default:
		return nil, nil, domain.NewConfigurationError(field+".family", "unrecognized distribution family %q", spec.Family.String())
	}
}

// pointMarginal is the degenerate distribution used when std is 0
type pointMarginal struct {
	value float64
}

func (p pointMarginal) Quantile(float64) float64 { return p.value }
func (p pointMarginal) Mean() float64            { return p.value }
func (p pointMarginal) Degenerate() bool         { return true }

// betaMarginal works on the fraction scale and reports percent
type betaMarginal struct {
	dist distuv.Beta
	mean float64
}

func newBetaMarginal(spec domain.DistributionSpec, field string) (Marginal, *domain.Degeneracy, error) {
	if spec.Std == 0 {
		return pointMarginal{value: spec.Mean}, nil, nil
	}

	m := spec.Mean / 100
	v := (spec.Std / 100) * (spec.Std / 100)
	if m <= 0 || m >= 1 {
		return pointMarginal{value: spec.Mean}, &domain.Degeneracy{
			Field:  field,
			Reason: "beta distribution undefined for a mean at the bounds; using the mean as a point mass",
		}, nil
	}

	var degeneracy *domain.Degeneracy
	maxVar := m * (1 - m)
	k := maxVar/v - 1
	if v >= maxVar {
		k = fallbackConcentration
		degeneracy = &domain.Degeneracy{
			Field:  field,
			Reason: "std too large for a beta with this mean; variance capped",
		}
	}

	return &betaMarginal{
		dist: distuv.Beta{Alpha: m * k, Beta: (1 - m) * k},
		mean: spec.Mean,
	}, degeneracy, nil
}

func (b *betaMarginal) Quantile(u float64) float64 { return 100 * b.dist.Quantile(u) }
func (b *betaMarginal) Mean() float64              { return b.mean }
func (b *betaMarginal) Degenerate() bool           { return false }

type normalMarginal struct {
	dist distuv.Normal
}

func newNormalMarginal(spec domain.DistributionSpec) Marginal {
	if spec.Std == 0 {
		return pointMarginal{value: spec.Mean}
	}
	return &normalMarginal{dist: distuv.Normal{Mu: spec.Mean, Sigma: spec.Std}}
}

func (n *normalMarginal) Quantile(u float64) float64 { return n.dist.Quantile(u) }
func (n *normalMarginal) Mean() float64              { return n.dist.Mu }
func (n *normalMarginal) Degenerate() bool           { return false }

// lognormalMarginal is parameterised from the arithmetic mean and std:
// sigma^2 = ln(1 + s^2/m^2), mu = ln(m) - sigma^2/2
type lognormalMarginal struct {
	dist distuv.LogNormal
	mean float64
}

func newLognormalMarginal(spec domain.DistributionSpec, field string) (Marginal, *domain.Degeneracy, error) {
	if spec.Std == 0 {
		return pointMarginal{value: spec.Mean}, nil, nil
	}
	if spec.Mean == 0 {
		return pointMarginal{value: 0}, &domain.Degeneracy{
			Field:  field,
			Reason: "lognormal distribution undefined for a zero mean; using zero as a point mass",
		}, nil
	}

	cv := spec.Std / spec.Mean
	sigma2 := math.Log1p(cv * cv)
	return &lognormalMarginal{
		dist: distuv.LogNormal{Mu: math.Log(spec.Mean) - sigma2/2, Sigma: math.Sqrt(sigma2)},
		mean: spec.Mean,
	}, nil, nil
}

func (l *lognormalMarginal) Quantile(u float64) float64 { return l.dist.Quantile(u) }
func (l *lognormalMarginal) Mean() float64              { return l.mean }
func (l *lognormalMarginal) Degenerate() bool           { return false }
