// Package adjust re-prices comparables into the subject's time and
// feature context, either through the hedonic model's coefficients or a
// heuristic additive schedule when no model is available.
//
// Model-based adjustment isolates the pure time-appreciation component
// from all other feature differences so diagnostics can report how much
// of an adjustment is market drift versus property mismatch.
package adjust

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"comppulse/internal/comps"
	"comppulse/internal/hedonic"
	"comppulse/internal/records"
)

// Heuristic adjustment schedule, in dollars, applied when no hedonic
// model trained.
const (
	dollarsPerSqft        = 15.0
	sqftDeadbandSqft      = 50.0
	dollarsPerBedroom     = 8_000.0
	dollarsPerBathroom    = 12_000.0
	bathroomThreshold     = 0.5
	dollarsPerGarage      = 5_000.0
	newBuildPremiumPSF    = 10.0
	monthlyAppreciation   = 0.003
	appreciationDeadbandM = 1
)

// MaxReasonableAdjustmentPct flags comparables whose total adjustment
// exceeds this share of their price. Diagnostic only: flagged comps are
// kept, not dropped.
const MaxReasonableAdjustmentPct = 0.25

// AdjustedComparable is a comparable re-priced into the subject's
// context, with the adjustment decomposed into time and feature parts.
type AdjustedComparable struct {
	Record        *records.CleanRecord `json:"record"`
	RankScore     float64              `json:"rank_score"`
	DistanceMiles float64              `json:"distance_miles"`

	AdjustedPrice float64 `json:"adjusted_price"`
	AdjustedPPSF  float64 `json:"adjusted_ppsf"`
	TimeAdjPct    float64 `json:"time_adj_pct"`  // pure appreciation component
	OtherAdjPct   float64 `json:"other_adj_pct"` // feature-difference component
	TotalAdjPct   float64 `json:"total_adj_pct"`
	ModelBased    bool    `json:"model_based"`
}

// Validation summarizes adjustment sanity checks for diagnostics.
type Validation struct {
	Valid            bool     `json:"valid"`
	Warnings         []string `json:"warnings,omitempty"`
	LargeAdjustments int      `json:"large_adjustments"`
}

// Adjuster applies price adjustments to comparables.
type Adjuster struct {
	logger *slog.Logger
}

// NewAdjuster creates an adjuster with the provided logger (nil uses
// slog.Default()).
func NewAdjuster(logger *slog.Logger) *Adjuster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adjuster{logger: logger}
}

// AdjustAll re-prices every comparable against the subject. A nil model
// selects the heuristic schedule. Adjustment never fails: numeric
// trouble degrades to a zero adjustment for that comparable.
func (a *Adjuster) AdjustAll(ctx context.Context, matches []comps.Comparable, subject *records.CleanRecord, model *hedonic.Model) []AdjustedComparable {
	out := make([]AdjustedComparable, 0, len(matches))
	for _, m := range matches {
		var adj AdjustedComparable
		if model != nil {
			adj = a.adjustWithModel(ctx, m, subject, model)
		} else {
			adj = adjustHeuristic(m, subject)
		}
		out = append(out, adj)
	}
	return out
}

// adjustWithModel predicts the comparable's log-price twice: once from
// its own features, once from the subject's other features anchored at
// the comparable's month. The difference isolates feature effects; the
// month coefficient alone carries the time effect.
func (a *Adjuster) adjustWithModel(ctx context.Context, m comps.Comparable, subject *records.CleanRecord, model *hedonic.Model) AdjustedComparable {
	comp := m.Record

	monthCoeff := model.MonthCoefficient()
	monthDiff := float64(subject.MonthIndex - comp.MonthIndex)

	compOwnLog := model.PredictLog(hedonic.ExtractFeatures(comp, model.KnownSubdivisions, 0))
	subjectAtCompMonthLog := model.PredictLog(hedonic.ExtractFeatures(subject, model.KnownSubdivisions, comp.MonthIndex))

	deltaOther := subjectAtCompMonthLog - compOwnLog

	timeAdjPct := math.Exp(monthCoeff*monthDiff) - 1
	totalAdjPct := math.Exp(deltaOther+monthCoeff*monthDiff) - 1
	otherAdjPct := totalAdjPct - timeAdjPct

	adjustedPrice := comp.Price * (1 + totalAdjPct)

	if !finite(timeAdjPct, totalAdjPct, adjustedPrice) || adjustedPrice <= 0 {
		a.logger.WarnContext(ctx, "model adjustment degenerate, using zero adjustment",
			"comp_id", comp.ID,
			"total_adj_pct", totalAdjPct,
		)
		return zeroAdjustment(m, true)
	}

	return AdjustedComparable{
		Record:        comp,
		RankScore:     m.Score,
		DistanceMiles: m.DistanceMiles,
		AdjustedPrice: adjustedPrice,
		AdjustedPPSF:  adjustedPrice / comp.Sqft,
		TimeAdjPct:    timeAdjPct,
		OtherAdjPct:   otherAdjPct,
		TotalAdjPct:   totalAdjPct,
		ModelBased:    true,
	}
}

// adjustHeuristic applies the additive dollar schedule: the subject's
// shortfall relative to the comparable raises the comparable's adjusted
// price and vice versa.
func adjustHeuristic(m comps.Comparable, subject *records.CleanRecord) AdjustedComparable {
	comp := m.Record
	var dollars float64

	if d := subject.Sqft - comp.Sqft; math.Abs(d) > sqftDeadbandSqft {
		dollars += d * dollarsPerSqft
	}
	dollars += (subject.Beds - comp.Beds) * dollarsPerBedroom
	if d := subject.Baths - comp.Baths; math.Abs(d) >= bathroomThreshold {
		dollars += d * dollarsPerBathroom
	}
	dollars += (subject.Garage - comp.Garage) * dollarsPerGarage

	if subject.IsNew != comp.IsNew {
		premium := subject.Sqft * newBuildPremiumPSF
		if !subject.IsNew {
			premium = -premium
		}
		dollars += premium
	}

	var timeAdjPct float64
	if monthDiff := float64(subject.MonthIndex - comp.MonthIndex); math.Abs(monthDiff) > appreciationDeadbandM {
		timeAdjPct = monthlyAppreciation * monthDiff
		dollars += comp.Price * timeAdjPct
	}

	totalAdjPct := dollars / comp.Price
	adjustedPrice := comp.Price + dollars
	if !finite(totalAdjPct, adjustedPrice) || adjustedPrice <= 0 {
		return zeroAdjustment(m, false)
	}

	return AdjustedComparable{
		Record:        comp,
		RankScore:     m.Score,
		DistanceMiles: m.DistanceMiles,
		AdjustedPrice: adjustedPrice,
		AdjustedPPSF:  adjustedPrice / comp.Sqft,
		TimeAdjPct:    timeAdjPct,
		OtherAdjPct:   totalAdjPct - timeAdjPct,
		TotalAdjPct:   totalAdjPct,
		ModelBased:    false,
	}
}

// ValidateAdjustments flags oversized or nonsensical adjustments with
// human-readable warnings. Used for diagnostics, never for dropping
// comparables. A non-positive maxAdjustmentPct falls back to
// MaxReasonableAdjustmentPct.
func ValidateAdjustments(adjusted []AdjustedComparable, maxAdjustmentPct float64) Validation {
	if maxAdjustmentPct <= 0 {
		maxAdjustmentPct = MaxReasonableAdjustmentPct
	}

	v := Validation{Valid: true}
	for _, adj := range adjusted {
		if math.Abs(adj.TotalAdjPct) > maxAdjustmentPct {
			v.Valid = false
			v.LargeAdjustments++
			v.Warnings = append(v.Warnings, fmt.Sprintf(
				"comp %s adjusted %.1f%%, beyond the %.0f%% reliability bound",
				adj.Record.ID, adj.TotalAdjPct*100, maxAdjustmentPct*100))
		}
		if adj.AdjustedPrice <= 0 {
			v.Valid = false
			v.Warnings = append(v.Warnings, fmt.Sprintf(
				"comp %s adjusted to a non-positive price", adj.Record.ID))
		}
	}
	return v
}

func zeroAdjustment(m comps.Comparable, modelBased bool) AdjustedComparable {
	return AdjustedComparable{
		Record:        m.Record,
		RankScore:     m.Score,
		DistanceMiles: m.DistanceMiles,
		AdjustedPrice: m.Record.Price,
		AdjustedPPSF:  m.Record.PPSF,
		ModelBased:    modelBased,
	}
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
