package rating

import (
	"math"

	"github.com/aristath/poolrisk/internal/domain"
)

// Confidence bounds, percent
const (
	minConfidence = 50.0
	maxConfidence = 100.0
)

// Map assigns a label on every scale of the table. On each scale the report
// gets the first bucket whose expected loss and 99% VaR thresholds are both
// met, so a lower loss can never produce a worse label.
func (t *Table) Map(report *domain.RiskReport) (domain.ShadowRating, error) {
	if report == nil {
		return domain.ShadowRating{}, domain.NewConfigurationError("report", "is required")
	}
	var99, ok := report.VaRAt(domain.TailConfidence)
	if !ok {
		return domain.ShadowRating{}, domain.NewConfigurationError("report.var", "99%% VaR is required for a shadow rating")
	}
	if !isFinite(report.ExpectedLoss) || report.ExpectedLoss < 0 {
		return domain.ShadowRating{}, domain.NewConfigurationError("report.expected_loss", "must be a non-negative number, got %v", report.ExpectedLoss)
	}
	if !isFinite(var99) || var99 < 0 {
		return domain.ShadowRating{}, domain.NewConfigurationError("report.var", "99%% VaR must be a non-negative number, got %v", var99)
	}

	el := report.ExpectedLoss * 100
	v := var99 * 100

	rating := domain.ShadowRating{
		Ratings:      make([]domain.AgencyRating, 0, len(t.Scales)),
		Confidence:   maxConfidence,
		TableVersion: t.Version,
	}
	for _, scale := range t.Scales {
		r := mapScale(scale, el, v)
		rating.Ratings = append(rating.Ratings, r)
		rating.Confidence = math.Min(rating.Confidence, r.Confidence)
	}
	return rating, nil
}

// mapScale places (el, v), both in percent, on one scale
func mapScale(scale Scale, el, v float64) domain.AgencyRating {
	rank := len(scale.Buckets)
	for i, b := range scale.Buckets {
		if el <= b.ExpectedLossMax && v <= b.VaR99Max {
			rank = i
			break
		}
	}

	label := scale.FloorLabel
	if rank < len(scale.Buckets) {
		label = scale.Buckets[rank].Label
	}

	elLo, elHi := bucketBounds(scale, rank, func(b Bucket) float64 { return b.ExpectedLossMax })
	vLo, vHi := bucketBounds(scale, rank, func(b Bucket) float64 { return b.VaR99Max })
	d := math.Min(
		boundaryDistance(el, elLo, elHi, rank > 0),
		boundaryDistance(v, vLo, vHi, rank > 0),
	)

	return domain.AgencyRating{
		Scale:      scale.Name,
		Label:      label,
		Rank:       rank,
		Confidence: minConfidence + (maxConfidence-minConfidence)*d,
	}
}

// bucketBounds returns the [lo, hi] range of one metric for the bucket at
// rank. The floor bucket past the end of the scale is open-ended.
func bucketBounds(scale Scale, rank int, metric func(Bucket) float64) (lo, hi float64) {
	if rank > 0 {
		lo = metric(scale.Buckets[rank-1])
	}
	if rank < len(scale.Buckets) {
		return lo, metric(scale.Buckets[rank])
	}
	return lo, math.Inf(1)
}

// boundaryDistance is the distance from x to the nearer bucket bound that
// could change the label, normalized to [0,1]. For a closed bucket the
// normalizer is half its width; an open-ended bucket is measured from its
// lower bound relative to that bound. The lower bound only matters when a
// better bucket exists and x actually sits above it.
func boundaryDistance(x, lo, hi float64, hasBetter bool) float64 {
	lowerRelevant := hasBetter && x >= lo

	if math.IsInf(hi, 1) {
		if !lowerRelevant || lo <= 0 {
			return 1
		}
		return clamp01((x - lo) / lo)
	}

	half := (hi - lo) / 2
	if half <= 0 {
		return 0
	}
	dist := hi - x
	if lowerRelevant {
		dist = math.Min(dist, x-lo)
	}
	return clamp01(dist / half)
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
