package comps

import (
	"math"

	"comppulse/internal/records"
)

// Feature-distance weights. They sum to 1 so the result stays in [0, 1].
const (
	wBeds = 0.20
	wBath = 0.20
	wSqft = 0.30
	wAge  = 0.10
	wGeo  = 0.10
	wTime = 0.10
)

// Normalization spans: a delta at or beyond the span counts as maximally
// dissimilar for that sub-term.
const (
	bedsSpan     = 3.0
	bathsSpan    = 3.0
	sqftSpanPct  = 0.50
	ageSpanYears = 20.0
	geoSpanMiles = 5.0
	domSpanDays  = 180.0
)

// FeatureDistance returns a weighted normalized dissimilarity between a
// subject and a comparable in [0, 1]: 0 means identical, 1 maximally
// dissimilar. Each sub-term is capped at 1 before weighting.
//
// This is the single shared implementation used both for comparable
// ranking context and for the match-quality term of the confidence score.
func FeatureDistance(subject, comp *records.CleanRecord) float64 {
	sqftSpan := subject.Sqft * sqftSpanPct
	if sqftSpan <= 0 {
		sqftSpan = 1000
	}

	d := wBeds*capped(math.Abs(subject.Beds-comp.Beds)/bedsSpan) +
		wBath*capped(math.Abs(subject.Baths-comp.Baths)/bathsSpan) +
		wSqft*capped(math.Abs(subject.Sqft-comp.Sqft)/sqftSpan) +
		wAge*capped(math.Abs(float64(subject.YearBuilt-comp.YearBuilt))/ageSpanYears) +
		wGeo*capped(MilesBetween(subject, comp)/geoSpanMiles) +
		wTime*capped(math.Abs(subject.DaysOnMarket-comp.DaysOnMarket)/domSpanDays)

	return capped(d)
}

func capped(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
