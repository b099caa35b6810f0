package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Family identifies the parametric family of a marginal distribution
type Family int

const (
	// FamilyUnset means "use the default family for this variable"
	FamilyUnset Family = iota
	// FamilyBeta is the Beta distribution, matched from mean/std on the fraction scale
	FamilyBeta
	// FamilyNormal is the Normal distribution
	FamilyNormal
	// FamilyLognormal is the Lognormal distribution, matched from arithmetic mean/std
	FamilyLognormal
)

// String returns the wire name of the family
func (f Family) String() string {
	switch f {
	case FamilyBeta:
		return "beta"
	case FamilyNormal:
		return "normal"
	case FamilyLognormal:
		return "lognormal"
	case FamilyUnset:
		return ""
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

// ParseFamily converts a wire name into a Family
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return FamilyUnset, nil
	case "beta":
		return FamilyBeta, nil
	case "normal", "gaussian":
		return FamilyNormal, nil
	case "lognormal", "log-normal":
		return FamilyLognormal, nil
	default:
		return FamilyUnset, NewConfigurationError("family", "unrecognized distribution family %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (f Family) MarshalText() ([]byte, error) {
	switch f {
	case FamilyUnset, FamilyBeta, FamilyNormal, FamilyLognormal:
		return []byte(f.String()), nil
	default:
		return nil, NewConfigurationError("family", "unrecognized distribution family %d", int(f))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler
func (f *Family) UnmarshalText(text []byte) error {
	parsed, err := ParseFamily(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// DistributionSpec describes one marginal: mean and standard deviation in
// percent plus the parametric family.
type DistributionSpec struct {
	Mean   float64 `json:"mean" yaml:"mean"`
	Std    float64 `json:"std" yaml:"std"`
	Family Family  `json:"family" yaml:"family"`
}

// Default VaR confidence levels when a scenario does not request any
var DefaultConfidenceLevels = []float64{0.95, 0.99}

// TailConfidence is the confidence level used for tail risk and rating
const TailConfidence = 0.99

// ScenarioParameters holds the statistical assumptions of one named scenario
type ScenarioParameters struct {
	Name             string           `json:"name" yaml:"name"`
	DefaultRate      DistributionSpec `json:"default_rate" yaml:"default_rate"`
	RecoveryRate     DistributionSpec `json:"recovery_rate" yaml:"recovery_rate"`
	PrepaymentRate   DistributionSpec `json:"prepayment_rate" yaml:"prepayment_rate"`
	Correlation      float64          `json:"correlation" yaml:"correlation"`
	ConfidenceLevels []float64        `json:"confidence_levels,omitempty" yaml:"confidence_levels"`
}

// Normalized returns a copy with default families filled in and the
// confidence levels sorted, de-duplicated and always including TailConfidence.
// The receiver is not modified.
func (s ScenarioParameters) Normalized() ScenarioParameters {
	out := s
	if out.DefaultRate.Family == FamilyUnset {
		out.DefaultRate.Family = FamilyBeta
	}
	if out.RecoveryRate.Family == FamilyUnset {
		out.RecoveryRate.Family = FamilyNormal
	}
	if out.PrepaymentRate.Family == FamilyUnset {
		out.PrepaymentRate.Family = FamilyLognormal
	}

	levels := s.ConfidenceLevels
	if len(levels) == 0 {
		levels = DefaultConfidenceLevels
	}
	merged := make([]float64, 0, len(levels)+1)
	merged = append(merged, levels...)
	merged = append(merged, TailConfidence)
	sort.Float64s(merged)

	unique := merged[:0]
	for i, c := range merged {
		if i > 0 && c == merged[i-1] {
			continue
		}
		unique = append(unique, c)
	}
	out.ConfidenceLevels = unique
	return out
}

// Validate checks the scenario invariants
func (s ScenarioParameters) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return NewConfigurationError("scenario.name", "is required")
	}
	specs := []struct {
		field string
		spec  DistributionSpec
	}{
		{"scenario.default_rate", s.DefaultRate},
		{"scenario.recovery_rate", s.RecoveryRate},
		{"scenario.prepayment_rate", s.PrepaymentRate},
	}
	for _, entry := range specs {
		if err := entry.spec.validate(entry.field); err != nil {
			return err
		}
	}
	if math.IsNaN(s.Correlation) || s.Correlation < 0 || s.Correlation >= 1 {
		return NewConfigurationError("scenario.correlation", "must be in [0,1), got %v", s.Correlation)
	}
	for i, c := range s.ConfidenceLevels {
		if math.IsNaN(c) || c <= 0 || c >= 1 {
			return NewConfigurationError(fmt.Sprintf("scenario.confidence_levels[%d]", i), "must be in (0,1), got %v", c)
		}
	}
	return nil
}

func (d DistributionSpec) validate(field string) error {
	if !isFiniteNonNegative(d.Mean) {
		return NewConfigurationError(field+".mean", "must be a non-negative number, got %v", d.Mean)
	}
	if d.Mean > 100 {
		return NewConfigurationError(field+".mean", "must be within [0,100] percent, got %v", d.Mean)
	}
	if !isFiniteNonNegative(d.Std) {
		return NewConfigurationError(field+".std", "must be a non-negative number, got %v", d.Std)
	}
	switch d.Family {
	case FamilyUnset, FamilyBeta, FamilyNormal, FamilyLognormal:
	default:
		return NewConfigurationError(field+".family", "unrecognized distribution family %d", int(d.Family))
	}
	return nil
}
