// Package riskmetrics reduces a simulated loss distribution to the figures
// in a RiskReport: expected loss, VaR, expected shortfall, sensitivities and
// the breakeven default rate.
package riskmetrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/poolrisk/internal/domain"
)

// Breakeven search settings
const (
	BreakevenTolerance     = 1e-6 // percent
	BreakevenMaxIterations = 200
)

// Mean returns the arithmetic mean of data.
// A constant sample returns its value exactly.
func Mean(sorted []float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if sorted[0] == sorted[len(sorted)-1] {
		return sorted[0]
	}
	return stat.Mean(sorted, nil)
}

// StdDev returns the sample standard deviation of data
func StdDev(sorted []float64) float64 {
	if len(sorted) < 2 || sorted[0] == sorted[len(sorted)-1] {
		return 0
	}
	return stat.StdDev(sorted, nil)
}

// ValueAtRisk returns the loss at confidence c of an ascending sample,
// interpolating linearly between order statistics:
// h = (n-1)c, VaR = x[floor(h)] + (h - floor(h)) * (x[floor(h)+1] - x[floor(h)])
func ValueAtRisk(sorted []float64, c float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if c <= 0 {
		return sorted[0]
	}
	if c >= 1 {
		return sorted[n-1]
	}

	h := float64(n-1) * c
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// ExpectedShortfall returns the mean of the sample at or beyond threshold.
// When nothing lies beyond the threshold it returns the threshold itself.
func ExpectedShortfall(sorted []float64, threshold float64) float64 {
	start := sort.SearchFloat64s(sorted, threshold)
	if start >= len(sorted) {
		return threshold
	}
	return Mean(sorted[start:])
}

// LossProbability returns the share of the sample strictly above zero
func LossProbability(sorted []float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	firstPositive := sort.Search(len(sorted), func(i int) bool { return sorted[i] > 0 })
	return float64(len(sorted)-firstPositive) / float64(len(sorted))
}

// VaRCurve evaluates ValueAtRisk at each confidence level
func VaRCurve(sorted []float64, levels []float64) []domain.VaRPoint {
	points := make([]domain.VaRPoint, len(levels))
	for i, c := range levels {
		points[i] = domain.VaRPoint{Confidence: c, Loss: ValueAtRisk(sorted, c)}
	}
	return points
}

// Sensitivities derives duration and convexity of pool value with respect to
// the default rate by finite differences. Value per unit notional is
// 1 - expected loss. upShift and downShift are the mean default-rate shifts
// actually applied, as fractions; they differ from the nominal bump when
// draws near 0% or 100% are clamped, so the differences use the uneven
// three-point stencil. With no room on one side the duration falls back to
// a one-sided difference and the convexity is undefined.
func Sensitivities(baseLoss, upLoss, downLoss, upShift, downShift float64) (duration, convexity domain.Metric, degeneracies []domain.Degeneracy) {
	v0 := 1 - baseLoss
	vUp := 1 - upLoss
	vDown := 1 - downLoss

	if v0 <= 0 || (upShift <= 0 && downShift <= 0) {
		reason := "pool value is not positive under the base scenario"
		if v0 > 0 {
			reason = "default rate cannot be shifted in either direction"
		}
		return domain.UndefinedMetric(), domain.UndefinedMetric(), []domain.Degeneracy{
			{Field: "duration", Reason: reason},
			{Field: "convexity", Reason: reason},
		}
	}

	switch {
	case downShift <= 0:
		duration = domain.DefinedMetric(-(vUp - v0) / (upShift * v0))
	case upShift <= 0:
		duration = domain.DefinedMetric(-(v0 - vDown) / (downShift * v0))
	default:
		hu, hd := upShift, downShift
		span := hu * hd * (hu + hd)
		slope := (hd*hd*(vUp-v0) + hu*hu*(v0-vDown)) / span
		curvature := 2 * (hd*vUp + hu*vDown - (hu+hd)*v0) / span
		return domain.DefinedMetric(-slope / v0), domain.DefinedMetric(curvature / v0), nil
	}
	return duration, domain.UndefinedMetric(), []domain.Degeneracy{{
		Field:  "convexity",
		Reason: "default rate can only be shifted in one direction",
	}}
}

// Breakeven finds the default-rate mean (percent, within [0,100]) at which
// yieldAt crosses zero, by bisection. yieldAt must be non-increasing. When
// there is no sign change over the range the result is undefined.
func Breakeven(yieldAt func(defaultMean float64) float64) (domain.Metric, *domain.Degeneracy) {
	lo, hi := 0.0, 100.0
	fLo := yieldAt(lo)
	fHi := yieldAt(hi)

	switch {
	case math.IsNaN(fLo) || math.IsNaN(fHi):
		return domain.UndefinedMetric(), &domain.Degeneracy{
			Field:  "breakeven_default_rate",
			Reason: "yield is not a number at the search bounds",
		}
	case fLo <= 0:
		return domain.UndefinedMetric(), &domain.Degeneracy{
			Field:  "breakeven_default_rate",
			Reason: "expected return is not positive even without defaults",
		}
	case fHi > 0:
		return domain.UndefinedMetric(), &domain.Degeneracy{
			Field:  "breakeven_default_rate",
			Reason: "expected return stays positive at a 100% default rate",
		}
	}

	for i := 0; i < BreakevenMaxIterations && hi-lo > BreakevenTolerance; i++ {
		mid := (lo + hi) / 2
		if yieldAt(mid) > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return domain.DefinedMetric((lo + hi) / 2), nil
}
