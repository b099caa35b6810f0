package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulationConfig_WithDefaults(t *testing.T) {
	cfg := SimulationConfig{Seed: 7, Granularity: " Quarterly "}.WithDefaults()

	assert.Equal(t, DefaultTrials, cfg.Trials)
	assert.Equal(t, uint64(7), cfg.Seed)
	assert.Equal(t, GranularityQuarterly, cfg.Granularity)
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, DefaultBumpBps, cfg.BumpBps)
	assert.Equal(t, 0, cfg.Workers)

	assert.Equal(t, GranularityMonthly, SimulationConfig{}.WithDefaults().Granularity)
}

func TestSimulationConfig_Batches(t *testing.T) {
	assert.Equal(t, 10, SimulationConfig{Trials: 10000, BatchSize: 1000}.Batches())
	assert.Equal(t, 11, SimulationConfig{Trials: 10001, BatchSize: 1000}.Batches())
	assert.Equal(t, 1, SimulationConfig{Trials: 10, BatchSize: 1000}.Batches())
	assert.Equal(t, 0, SimulationConfig{Trials: 10}.Batches())
}

func TestSimulationConfig_Validate(t *testing.T) {
	limits := DefaultLimits()
	valid := func() SimulationConfig {
		return SimulationConfig{Trials: 10000, Seed: 1}.WithDefaults()
	}

	tests := []struct {
		name      string
		mutate    func(c *SimulationConfig)
		wantField string
	}{
		{"valid", func(c *SimulationConfig) {}, ""},
		{"minimum trials", func(c *SimulationConfig) { c.Trials = DefaultMinTrials }, ""},
		{"below minimum", func(c *SimulationConfig) { c.Trials = DefaultMinTrials - 1 }, "config.trials"},
		{"above maximum", func(c *SimulationConfig) { c.Trials = DefaultMaxTrials + 1 }, "config.trials"},
		{"negative trials", func(c *SimulationConfig) { c.Trials = -5 }, "config.trials"},
		{"zero batch", func(c *SimulationConfig) { c.BatchSize = 0 }, "config.batch_size"},
		{"batch count at cap", func(c *SimulationConfig) { c.Trials, c.BatchSize = 1_000_000, 100 }, ""},
		{"too many batches", func(c *SimulationConfig) { c.Trials, c.BatchSize = 1_000_000, 1 }, "config.batch_size"},
		{"negative workers", func(c *SimulationConfig) { c.Workers = -1 }, "config.workers"},
		{"unknown granularity", func(c *SimulationConfig) { c.Granularity = "weekly" }, "config.granularity"},
		{"zero bump", func(c *SimulationConfig) { c.BumpBps = 0 }, "config.bump_bps"},
		{"NaN bump", func(c *SimulationConfig) { c.BumpBps = math.NaN() }, "config.bump_bps"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate(limits)
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

func TestGranularity_Months(t *testing.T) {
	assert.Equal(t, 1, GranularityMonthly.Months())
	assert.Equal(t, 3, GranularityQuarterly.Months())
	assert.Equal(t, 12, GranularityAnnual.Months())
}

func TestMetric_JSON(t *testing.T) {
	out, err := json.Marshal(struct {
		A Metric `json:"a"`
		B Metric `json:"b"`
		C Metric `json:"c"`
	}{DefinedMetric(1.5), UndefinedMetric(), DefinedMetric(math.Inf(1))})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1.5,"b":null,"c":null}`, string(out))

	var m Metric
	require.NoError(t, json.Unmarshal([]byte("2.25"), &m))
	assert.Equal(t, DefinedMetric(2.25), m)
	require.NoError(t, json.Unmarshal([]byte("null"), &m))
	assert.False(t, m.Defined)
}

func TestRiskReport_VaRAt(t *testing.T) {
	report := &RiskReport{VaR: []VaRPoint{{Confidence: 0.95, Loss: 0.02}, {Confidence: 0.99, Loss: 0.04}}}

	v, ok := report.VaRAt(0.99)
	assert.True(t, ok)
	assert.Equal(t, 0.04, v)

	_, ok = report.VaRAt(0.975)
	assert.False(t, ok)
}

func TestShadowRating_Label(t *testing.T) {
	rating := ShadowRating{Ratings: []AgencyRating{{Scale: "moodys", Label: "Aa2"}, {Scale: "sp", Label: "AA"}}}

	label, ok := rating.Label("sp")
	assert.True(t, ok)
	assert.Equal(t, "AA", label)

	_, ok = rating.Label("fitch")
	assert.False(t, ok)
}

func TestRunStatus_Terminal(t *testing.T) {
	assert.False(t, RunPending.Terminal())
	assert.False(t, RunRunning.Terminal())
	assert.True(t, RunCompleted.Terminal())
	assert.True(t, RunCancelled.Terminal())
	assert.True(t, RunFailed.Terminal())
}
