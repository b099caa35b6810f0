package sampling

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/poolrisk/internal/domain"
)

// uniformEpsilon keeps uniforms away from 0 and 1 so unbounded quantiles stay finite
const uniformEpsilon = 1e-12

// Triple is one joint draw of the three pool rates, in percent
type Triple struct {
	DefaultRate    float64
	RecoveryRate   float64
	PrepaymentRate float64
}

// Loadings on the systematic factor. The factor is oriented as "stress":
// defaults rise with it while recoveries and prepayments fall.
var loadingSigns = [3]float64{1, -1, -1}

// CopulaSampler draws correlated triples under a single-factor Gaussian copula.
// It holds no mutable state and is safe for concurrent use; every caller
// brings its own random stream.
type CopulaSampler struct {
	marginals  [3]Marginal
	systematic float64 // sqrt(rho)
	idio       float64 // sqrt(1-rho)
}

// NewCopulaSampler validates the scenario and builds the marginals.
// The scenario must already be normalized (families filled in).
func NewCopulaSampler(scenario domain.ScenarioParameters) (*CopulaSampler, []domain.Degeneracy, error) {
	if math.IsNaN(scenario.Correlation) || scenario.Correlation < 0 || scenario.Correlation >= 1 {
		return nil, nil, domain.NewConfigurationError("scenario.correlation", "must be in [0,1), got %v", scenario.Correlation)
	}

	specs := [3]struct {
		field string
		spec  domain.DistributionSpec
	}{
		{"scenario.default_rate", scenario.DefaultRate},
		{"scenario.recovery_rate", scenario.RecoveryRate},
		{"scenario.prepayment_rate", scenario.PrepaymentRate},
	}

	s := &CopulaSampler{
		systematic: math.Sqrt(scenario.Correlation),
		idio:       math.Sqrt(1 - scenario.Correlation),
	}
	var degeneracies []domain.Degeneracy
	for i, entry := range specs {
		marginal, degeneracy, err := NewMarginal(entry.spec, entry.field)
		if err != nil {
			return nil, nil, err
		}
		if degeneracy != nil {
			degeneracies = append(degeneracies, *degeneracy)
		}
		s.marginals[i] = marginal
	}
	return s, degeneracies, nil
}

// Sample draws one triple from rng. Every call consumes exactly four normal
// variates (one systematic, three idiosyncratic) whatever the marginals are,
// so a point-mass marginal never shifts the stream seen by the others.
func (s *CopulaSampler) Sample(rng *rand.Rand) Triple {
	z := rng.NormFloat64()
	var values [3]float64
	for i, marginal := range s.marginals {
		eps := rng.NormFloat64()
		x := loadingSigns[i]*s.systematic*z + s.idio*eps
		values[i] = clampPercent(marginal.Quantile(toUniform(x)))
	}
	return Triple{
		DefaultRate:    values[0],
		RecoveryRate:   values[1],
		PrepaymentRate: values[2],
	}
}

// Means returns the triple of configured means
func (s *CopulaSampler) Means() Triple {
	return Triple{
		DefaultRate:    clampPercent(s.marginals[0].Mean()),
		RecoveryRate:   clampPercent(s.marginals[1].Mean()),
		PrepaymentRate: clampPercent(s.marginals[2].Mean()),
	}
}

// Deterministic reports whether every marginal is a point mass
func (s *CopulaSampler) Deterministic() bool {
	for _, m := range s.marginals {
		if !m.Degenerate() {
			return false
		}
	}
	return true
}

func toUniform(x float64) float64 {
	u := distuv.UnitNormal.CDF(x)
	return math.Min(math.Max(u, uniformEpsilon), 1-uniformEpsilon)
}

func clampPercent(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(math.Max(v, 0), 100)
}
