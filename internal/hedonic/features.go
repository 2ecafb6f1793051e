package hedonic

import (
	"math"
	"sort"

	"comppulse/internal/records"
)

// Base feature names in the order they enter the design matrix.
// Subdivision one-hots follow, sorted by name.
var baseFeatureNames = []string{
	FeatLogSqft,
	FeatBeds,
	FeatBaths,
	FeatGarage,
	FeatIsNew,
	FeatYear,
	FeatMonth,
	FeatLogLot,
	FeatSizeSmall,
	FeatSizeMid,
	FeatSizeLarge,
	FeatPrimaryMain,
}

// Feature name constants keep prediction-time lookups explicit.
const (
	FeatLogSqft     = "log_sqft"
	FeatBeds        = "beds"
	FeatBaths       = "baths"
	FeatGarage      = "garage"
	FeatIsNew       = "is_new"
	FeatYear        = "year_built"
	FeatMonth       = "month_index"
	FeatLogLot      = "log_lot_sqft"
	FeatSizeSmall   = "size_le_2000"
	FeatSizeMid     = "size_2000_3000"
	FeatSizeLarge   = "size_gt_3000"
	FeatPrimaryMain = "primary_suite_main"

	subdivPrefix = "subdiv_"
)

// Subdivision one-hot limits: at most maxSubdivisionDummies indicator
// columns, each backed by at least minSubdivisionSamples training rows,
// to keep the design matrix away from near-singular dummy traps.
const (
	maxSubdivisionDummies = 10
	minSubdivisionSamples = 5
)

// primarySuiteMainProb is a fixed proxy for "primary suite on main floor":
// new construction gets a conservative 0.2, resale 0. A known
// approximation carried over from the heuristic it replaces.
const primarySuiteMainProb = 0.2

// FeatureVector maps feature names to values. Absent names mean zero.
type FeatureVector map[string]float64

// ExtractFeatures builds the hedonic feature vector for a record.
//
// knownSubdivisions restricts which subdivision indicators may fire; pass
// nil to emit none (prediction against a model uses the model's own list).
// forceMonth overrides the record's month index when non-zero, which the
// price adjuster uses to isolate time effects.
func ExtractFeatures(r *records.CleanRecord, knownSubdivisions map[string]bool, forceMonth int) FeatureVector {
	fv := FeatureVector{
		FeatLogSqft: math.Log(r.Sqft),
		FeatBeds:    r.Beds,
		FeatBaths:   r.Baths,
		FeatGarage:  r.Garage,
		FeatYear:    float64(r.YearBuilt),
		FeatMonth:   float64(r.MonthIndex),
	}

	if forceMonth > 0 {
		fv[FeatMonth] = float64(forceMonth)
	}
	if r.IsNew {
		fv[FeatIsNew] = 1
		fv[FeatPrimaryMain] = primarySuiteMainProb
	}
	if r.LotSqft > 0 {
		fv[FeatLogLot] = math.Log(r.LotSqft)
	}

	switch {
	case r.Sqft <= 2000:
		fv[FeatSizeSmall] = 1
	case r.Sqft <= 3000:
		fv[FeatSizeMid] = 1
	default:
		fv[FeatSizeLarge] = 1
	}

	if r.Subdivision != "" && knownSubdivisions[r.Subdivision] {
		fv[subdivPrefix+r.Subdivision] = 1
	}

	return fv
}

// eligibleSubdivisions returns the subdivisions with enough training
// samples to earn an indicator column, capped at maxSubdivisionDummies
// (most frequent first, name as tiebreak for determinism).
func eligibleSubdivisions(recs []*records.CleanRecord) map[string]bool {
	counts := make(map[string]int)
	for _, r := range recs {
		if r.Subdivision != "" {
			counts[r.Subdivision]++
		}
	}

	names := make([]string, 0, len(counts))
	for name, n := range counts {
		if n >= minSubdivisionSamples {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})

	if len(names) > maxSubdivisionDummies {
		names = names[:maxSubdivisionDummies]
	}

	eligible := make(map[string]bool, len(names))
	for _, n := range names {
		eligible[n] = true
	}
	return eligible
}

// featureNameOrder returns the full ordered column list for a training
// run: base features first, then subdivision indicators sorted by name.
func featureNameOrder(eligible map[string]bool) []string {
	names := make([]string, 0, len(baseFeatureNames)+len(eligible))
	names = append(names, baseFeatureNames...)

	subdivs := make([]string, 0, len(eligible))
	for s := range eligible {
		subdivs = append(subdivs, subdivPrefix+s)
	}
	sort.Strings(subdivs)
	return append(names, subdivs...)
}
