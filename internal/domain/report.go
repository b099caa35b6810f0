package domain

import (
	"bytes"
	"encoding/json"
	"math"
)

// TrialOutcome is the result of one Monte Carlo trial.
// Rates are in percent as sampled; loss and yield are fractions.
type TrialOutcome struct {
	Index          int       `json:"index"`
	DefaultRate    float64   `json:"default_rate"`
	RecoveryRate   float64   `json:"recovery_rate"`
	PrepaymentRate float64   `json:"prepayment_rate"`
	LossFraction   float64   `json:"loss_fraction"`
	Yield          float64   `json:"yield"`
	TrancheLosses  []float64 `json:"tranche_losses,omitempty"`
	TrancheYields  []float64 `json:"tranche_yields,omitempty"`
}

// Metric is a report value that may be undefined because of a numerical
// degeneracy. Undefined metrics marshal as JSON null.
type Metric struct {
	Value   float64
	Defined bool
}

// DefinedMetric returns a defined metric
func DefinedMetric(v float64) Metric {
	return Metric{Value: v, Defined: true}
}

// UndefinedMetric returns the explicit "undefined" value
func UndefinedMetric() Metric {
	return Metric{}
}

// MarshalJSON implements json.Marshaler
func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.Defined || math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Metric) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = UndefinedMetric()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = DefinedMetric(v)
	return nil
}

// VaRPoint is the loss fraction at one confidence level
type VaRPoint struct {
	Confidence float64 `json:"confidence"`
	Loss       float64 `json:"loss"`
}

// TrancheReport holds the per-tranche breakdown of a run
type TrancheReport struct {
	Name            string     `json:"name"`
	Seniority       int        `json:"seniority"`
	Attachment      float64    `json:"attachment"`
	Detachment      float64    `json:"detachment"`
	ExpectedLoss    float64    `json:"expected_loss"`
	VaR             []VaRPoint `json:"var"`
	TailRisk        float64    `json:"tail_risk"`
	ExpectedReturn  float64    `json:"expected_return"`
	LossProbability float64    `json:"loss_probability"` // share of trials with any loss
}

// RiskReport is the immutable result of one simulation run
type RiskReport struct {
	Scenario             string          `json:"scenario"`
	Trials               int             `json:"trials"`
	Seed                 uint64          `json:"seed"`
	ExpectedLoss         float64         `json:"expected_loss"`
	LossStdDev           float64         `json:"loss_std_dev"`
	VaR                  []VaRPoint      `json:"var"`
	TailRisk             float64         `json:"tail_risk"`
	ExpectedReturn       float64         `json:"expected_return"`
	Duration             Metric          `json:"duration"`
	Convexity            Metric          `json:"convexity"`
	BreakevenDefaultRate Metric          `json:"breakeven_default_rate"` // percent
	Tranches             []TrancheReport `json:"tranches,omitempty"`
	Degeneracies         []Degeneracy    `json:"degeneracies,omitempty"`
}

// VaRAt returns the VaR at confidence c, if it was requested
func (r *RiskReport) VaRAt(c float64) (float64, bool) {
	return varAt(r.VaR, c)
}

// VaRAt returns the tranche VaR at confidence c, if it was requested
func (t *TrancheReport) VaRAt(c float64) (float64, bool) {
	return varAt(t.VaR, c)
}

func varAt(points []VaRPoint, c float64) (float64, bool) {
	for _, p := range points {
		if math.Abs(p.Confidence-c) < 1e-9 {
			return p.Loss, true
		}
	}
	return 0, false
}

// AgencyRating is the rating bucket assigned on one agency scale
type AgencyRating struct {
	Scale      string  `json:"scale"`
	Label      string  `json:"label"`
	Rank       int     `json:"rank"` // 0 = best bucket
	Confidence float64 `json:"confidence"`
}

// ShadowRating is the internally computed agency-equivalent rating of a report
type ShadowRating struct {
	Ratings      []AgencyRating `json:"ratings"`
	Confidence   float64        `json:"confidence"` // percent
	TableVersion string         `json:"table_version"`
}

// Label returns the label assigned on the given scale
func (s ShadowRating) Label(scale string) (string, bool) {
	for _, r := range s.Ratings {
		if r.Scale == scale {
			return r.Label, true
		}
	}
	return "", false
}

// RunStatus is the lifecycle state of a simulation run
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether the run will not change state again
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunCancelled || s == RunFailed
}
