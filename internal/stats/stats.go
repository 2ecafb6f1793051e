// Package stats provides the robust order-statistic primitives used by the
// valuation engine: median, percentile interpolation, winsorization, MAD,
// coefficient of variation, and robust band-width estimation.
//
// All functions operate on finite float64 slices and never mutate their
// input. By convention an empty input yields 0 rather than an error, so the
// pipeline can feed thin comparable sets through without special-casing.
package stats

import (
	"fmt"
	"math"
	"sort"
)

// Band-width clamps for RobustBandPct. A market tighter than 3% is treated
// as 3% wide, and a market wider than 30% is capped to keep classification
// thresholds meaningful.
const (
	MinBandPct     = 0.03
	MaxBandPct     = 0.30
	DefaultBandPct = 0.05
)

// MADConsistency converts MAD to a standard-deviation-equivalent scale for
// normally distributed data.
const MADConsistency = 1.4826

// Median returns the median of values, or 0 for an empty slice.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	sorted := sortedCopy(values)
	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Percentile returns the p-th percentile of values using linear
// interpolation between closest ranks.
//
// Parameters:
//   - values: input sample (empty slice returns 0)
//   - p: percentile in [0, 100]
//
// Returns an error only when p is out of range.
func Percentile(values []float64, p float64) (float64, error) {
	if p < 0 || p > 100 {
		return 0, fmt.Errorf("percentile out of range: %.2f", p)
	}
	if len(values) == 0 {
		return 0, nil
	}

	sorted := sortedCopy(values)
	if len(sorted) == 1 {
		return sorted[0], nil
	}

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower], nil
	}

	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower]), nil
}

// Winsorize clips values to the [lowerPct, upperPct] percentile bounds
// instead of discarding outliers, preserving sample size. The returned
// slice is a new allocation; input order is preserved.
func Winsorize(values []float64, lowerPct, upperPct float64) ([]float64, error) {
	if lowerPct >= upperPct {
		return nil, fmt.Errorf("invalid winsorization bounds: lower=%.1f, upper=%.1f", lowerPct, upperPct)
	}
	if len(values) == 0 {
		return []float64{}, nil
	}

	low, err := Percentile(values, lowerPct)
	if err != nil {
		return nil, err
	}
	high, err := Percentile(values, upperPct)
	if err != nil {
		return nil, err
	}

	clipped := make([]float64, len(values))
	for i, v := range values {
		switch {
		case v < low:
			clipped[i] = low
		case v > high:
			clipped[i] = high
		default:
			clipped[i] = v
		}
	}
	return clipped, nil
}

// MAD returns the median absolute deviation from the median, a robust
// spread measure unaffected by a minority of extreme values.
func MAD(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	med := Median(values)
	deviations := make([]float64, len(values))
	for i, v := range values {
		deviations[i] = math.Abs(v - med)
	}
	return Median(deviations)
}

// CoeffVariation returns the coefficient of variation (sample standard
// deviation over mean), or 0 when the mean is 0.
func CoeffVariation(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)
	if mean == 0 {
		return 0
	}

	var sqDiff float64
	for _, v := range values {
		d := v - mean
		sqDiff += d * d
	}
	std := math.Sqrt(sqDiff / float64(n))
	return std / mean
}

// RobustBandPct estimates the relative width of the price band around the
// median as a fraction of the median, clamped to [MinBandPct, MaxBandPct].
//
// The primary estimator is scaled MAD (1.4826·MAD/median). When MAD
// collapses to 0 (heavily repeated values) it falls back to half the IQR
// over the median; when that is also unusable it returns DefaultBandPct.
//
// An optional precomputed median may be passed to avoid resorting; pass a
// non-positive value to have it computed here.
func RobustBandPct(values []float64, precomputedMedian float64) float64 {
	if len(values) == 0 {
		return DefaultBandPct
	}

	med := precomputedMedian
	if med <= 0 {
		med = Median(values)
	}
	if med <= 0 {
		return DefaultBandPct
	}

	if mad := MAD(values); mad > 0 {
		return clampBand(MADConsistency * mad / med)
	}

	p25, _ := Percentile(values, 25)
	p75, _ := Percentile(values, 75)
	if iqr := p75 - p25; iqr > 0 {
		return clampBand(0.5 * iqr / med)
	}

	return DefaultBandPct
}

func clampBand(band float64) float64 {
	if band < MinBandPct {
		return MinBandPct
	}
	if band > MaxBandPct {
		return MaxBandPct
	}
	return band
}

func sortedCopy(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted
}
