package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestFamily_Text(t *testing.T) {
	tests := []struct {
		in   string
		want Family
	}{
		{"beta", FamilyBeta},
		{"Normal", FamilyNormal},
		{"gaussian", FamilyNormal},
		{"log-normal", FamilyLognormal},
		{"", FamilyUnset},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFamily(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseFamily("cauchy")
	assert.True(t, IsConfigurationError(err))

	_, err = Family(9).MarshalText()
	assert.Error(t, err)
}

func TestDistributionSpec_JSONAndYAML(t *testing.T) {
	var fromJSON DistributionSpec
	require.NoError(t, json.Unmarshal([]byte(`{"mean":1.2,"std":0.3,"family":"beta"}`), &fromJSON))
	assert.Equal(t, DistributionSpec{Mean: 1.2, Std: 0.3, Family: FamilyBeta}, fromJSON)

	out, err := json.Marshal(DistributionSpec{Mean: 12.3, Std: 2.1, Family: FamilyLognormal})
	require.NoError(t, err)
	assert.JSONEq(t, `{"mean":12.3,"std":2.1,"family":"lognormal"}`, string(out))

	var fromYAML DistributionSpec
	require.NoError(t, yaml.Unmarshal([]byte("mean: 89.5\nstd: 5.2\nfamily: normal\n"), &fromYAML))
	assert.Equal(t, FamilyNormal, fromYAML.Family)

	assert.Error(t, json.Unmarshal([]byte(`{"family":"pareto"}`), &fromJSON))
}

func TestScenarioParameters_Normalized(t *testing.T) {
	s := ScenarioParameters{Name: "base", ConfidenceLevels: []float64{0.99, 0.90, 0.95, 0.90}}
	n := s.Normalized()

	assert.Equal(t, FamilyBeta, n.DefaultRate.Family)
	assert.Equal(t, FamilyNormal, n.RecoveryRate.Family)
	assert.Equal(t, FamilyLognormal, n.PrepaymentRate.Family)
	assert.Equal(t, []float64{0.90, 0.95, 0.99}, n.ConfidenceLevels)
	assert.Equal(t, []float64{0.99, 0.90, 0.95, 0.90}, s.ConfidenceLevels, "receiver is not modified")

	assert.Equal(t, []float64{0.95, 0.99}, ScenarioParameters{}.Normalized().ConfidenceLevels)
	assert.Equal(t, []float64{0.9, 0.99}, ScenarioParameters{ConfidenceLevels: []float64{0.9}}.Normalized().ConfidenceLevels,
		"the tail level is always present")
}

func TestScenarioParameters_Validate(t *testing.T) {
	valid := func() ScenarioParameters {
		return ScenarioParameters{
			Name:           "base",
			DefaultRate:    DistributionSpec{Mean: 1.2, Std: 0.3},
			RecoveryRate:   DistributionSpec{Mean: 89.5, Std: 5.2},
			PrepaymentRate: DistributionSpec{Mean: 12.3, Std: 2.1},
			Correlation:    0.15,
		}
	}

	tests := []struct {
		name      string
		mutate    func(s *ScenarioParameters)
		wantField string
	}{
		{"valid", func(s *ScenarioParameters) {}, ""},
		{"zero correlation", func(s *ScenarioParameters) { s.Correlation = 0 }, ""},
		{"missing name", func(s *ScenarioParameters) { s.Name = "" }, "scenario.name"},
		{"negative mean", func(s *ScenarioParameters) { s.DefaultRate.Mean = -1 }, "scenario.default_rate.mean"},
		{"mean above 100", func(s *ScenarioParameters) { s.RecoveryRate.Mean = 101 }, "scenario.recovery_rate.mean"},
		{"negative std", func(s *ScenarioParameters) { s.PrepaymentRate.Std = -0.5 }, "scenario.prepayment_rate.std"},
		{"infinite std", func(s *ScenarioParameters) { s.PrepaymentRate.Std = math.Inf(1) }, "scenario.prepayment_rate.std"},
		{"unknown family", func(s *ScenarioParameters) { s.DefaultRate.Family = Family(7) }, "scenario.default_rate.family"},
		{"correlation one", func(s *ScenarioParameters) { s.Correlation = 1 }, "scenario.correlation"},
		{"negative correlation", func(s *ScenarioParameters) { s.Correlation = -0.2 }, "scenario.correlation"},
		{"confidence level of one", func(s *ScenarioParameters) { s.ConfidenceLevels = []float64{0.95, 1} }, "scenario.confidence_levels[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}
