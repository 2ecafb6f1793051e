// Package quality scores how trustworthy a valuation is: penalty points
// for stretched adjustments and size mismatches, plus a 0-100 confidence
// score combining sample size, match quality, and price consistency.
package quality

import (
	"math"

	"comppulse/internal/adjust"
	"comppulse/internal/comps"
	"comppulse/internal/records"
	"comppulse/internal/stats"
)

// Penalty thresholds and point values.
const (
	largeAdjustmentThreshold = 0.12
	largeAdjustmentPenalty   = 5.0

	timeDriftThreshold = 0.03
	timeDriftPenalty   = 5.0

	sizeMismatchThreshold = 0.10
	sizeMismatchPenalty   = 10.0
)

// Confidence component ceilings. Sample size saturates at 40 points;
// match quality and consistency carry 30 each.
const (
	sampleSizeCeiling  = 40.0
	matchQualityPoints = 30.0
	consistencyPoints  = 30.0
	cvSaturation       = 0.2
)

// Penalties is the quality-penalty breakdown for a valuation.
type Penalties struct {
	LargeAdjustments float64 `json:"large_adjustments"`
	TimeDrift        float64 `json:"time_drift"`
	SizeMismatch     float64 `json:"size_mismatch"`
	Total            float64 `json:"total"`
}

// CalculatePenalties inspects the adjusted comparables and the implied
// sizing of the subject for quality problems:
//
//   - any comparable stretched more than 12% in total
//   - average absolute time drift above 3%
//   - implied sqft (subject price over median PPSF) off by more than 10%
func CalculatePenalties(adjusted []adjust.AdjustedComparable, subject *records.CleanRecord, medianPPSF float64) Penalties {
	var p Penalties

	var timeSum float64
	anyLarge := false
	for _, a := range adjusted {
		if math.Abs(a.TotalAdjPct) > largeAdjustmentThreshold {
			anyLarge = true
		}
		timeSum += math.Abs(a.TimeAdjPct)
	}

	if anyLarge {
		p.LargeAdjustments = largeAdjustmentPenalty
	}
	if len(adjusted) > 0 && timeSum/float64(len(adjusted)) > timeDriftThreshold {
		p.TimeDrift = timeDriftPenalty
	}
	if medianPPSF > 0 && subject.Sqft > 0 {
		impliedSqft := subject.Price / medianPPSF
		if math.Abs(impliedSqft-subject.Sqft)/subject.Sqft > sizeMismatchThreshold {
			p.SizeMismatch = sizeMismatchPenalty
		}
	}

	p.Total = p.LargeAdjustments + p.TimeDrift + p.SizeMismatch
	return p
}

// ConfidenceScore combines three components minus penalties, clamped to
// [0, 100]:
//
//	S = min(40, 10·ln(1+n))            sample size
//	M = 30·(1 − avg feature distance)  match quality
//	C = 30·(1 − min(cv, 0.2)/0.2)      price consistency
//
// Match quality reuses the selector's shared feature-distance function so
// ranking and confidence agree on what "similar" means.
func ConfidenceScore(ppsfValues []float64, adjusted []adjust.AdjustedComparable, subject *records.CleanRecord, penalties Penalties) float64 {
	n := float64(len(adjusted))
	if n == 0 {
		return 0
	}

	s := math.Min(sampleSizeCeiling, 10*math.Log(1+n))

	var distSum float64
	for _, a := range adjusted {
		distSum += comps.FeatureDistance(subject, a.Record)
	}
	m := matchQualityPoints * (1 - distSum/n)

	cv := stats.CoeffVariation(ppsfValues)
	c := consistencyPoints * (1 - math.Min(cv, cvSaturation)/cvSaturation)

	return clamp(s+m+c-penalties.Total, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
