package valuation

import (
	"comppulse/internal/records"
)

// Valuation status values. Every call returns exactly one of these;
// "error" and "insufficient_data" are terminal outcomes, not exceptions.
const (
	StatusSuccess          = "success"
	StatusInsufficientData = "insufficient_data"
	StatusError            = "error"
)

// Market-position classifications.
const (
	ClassBelow        = "Below"
	ClassFair         = "Market Fair"
	ClassAbove        = "Above"
	ClassInsufficient = "Insufficient Data"
)

// Options tunes a valuation call. Unset fields select the defaults via
// Normalize; DefaultOptions returns them explicitly. The booleans are
// pointers so a partial options payload keeps its true defaults.
type Options struct {
	// MinComps is the fewest comparables required before the search is
	// declared insufficient. The engine uses 2 everywhere.
	MinComps int `json:"min_comps"`

	// UseHedonicModel enables ridge-model training when enough sold
	// records exist. Nil means true.
	UseHedonicModel *bool `json:"use_hedonic_model"`

	// FallbackToHeuristics keeps the pipeline alive on model-training
	// failure by switching to the additive adjustment schedule. Nil
	// means true.
	FallbackToHeuristics *bool `json:"fallback_to_heuristics"`

	// MaxAdjustmentPct bounds the diagnostic adjustment-validation
	// warnings, expressed as a percentage (default 25).
	MaxAdjustmentPct float64 `json:"max_adjustment_pct"`
}

// Bool returns a pointer to b, for populating Options literals.
func Bool(b bool) *bool {
	return &b
}

// DefaultOptions returns the standard engine settings.
func DefaultOptions() Options {
	return Options{
		MinComps:             2,
		UseHedonicModel:      Bool(true),
		FallbackToHeuristics: Bool(true),
		MaxAdjustmentPct:     25,
	}
}

// Normalize fills unset fields with defaults.
func (o Options) Normalize() Options {
	if o.MinComps <= 0 {
		o.MinComps = 2
	}
	if o.UseHedonicModel == nil {
		o.UseHedonicModel = Bool(true)
	}
	if o.FallbackToHeuristics == nil {
		o.FallbackToHeuristics = Bool(true)
	}
	if o.MaxAdjustmentPct <= 0 {
		o.MaxAdjustmentPct = 25
	}
	return o
}

// PriceRange is the suggested listing range for the subject.
type PriceRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// PriceGap expresses how far the subject's asking price sits from the
// comparable-implied market level.
type PriceGap struct {
	PerSqft float64 `json:"per_sqft"`
	Total   float64 `json:"total"`
}

// CompSummary is the explainability view of one adjusted comparable.
type CompSummary struct {
	ID            string  `json:"id"`
	Address       string  `json:"address,omitempty"`
	Status        string  `json:"status"`
	Price         float64 `json:"price"`
	AdjustedPrice float64 `json:"adjusted_price"`
	PPSF          float64 `json:"ppsf"`
	AdjustedPPSF  float64 `json:"adjusted_ppsf"`
	TotalAdjPct   float64 `json:"total_adj_pct"`
	TimeAdjPct    float64 `json:"time_adj_pct"`
	DistanceMiles float64 `json:"distance_miles"`
	RankScore     float64 `json:"rank_score"`
}

// BandStats describes the winsorized adjusted price-per-sqft band the
// classification threshold was derived from.
type BandStats struct {
	MedianPPSF float64 `json:"median_ppsf"`
	P25        float64 `json:"p25"`
	P75        float64 `json:"p75"`
	BandPct    float64 `json:"band_pct"`
	Threshold  float64 `json:"threshold"`
}

// Reconciliation is the cross-check between the median-based and
// hedonic-model-based subject estimates.
type Reconciliation struct {
	MedianBased  float64 `json:"median_based"`
	HedonicBased float64 `json:"hedonic_based"`
	DiffPct      float64 `json:"diff_pct"`
	Flagged      bool    `json:"flagged"`
}

// Explain is the structured explanation block consumed by downstream
// narrative generators.
type Explain struct {
	TopComps       []CompSummary  `json:"top_comps"`
	Band           BandStats      `json:"band"`
	Reconciliation Reconciliation `json:"reconciliation"`
	CriteriaUsed   string         `json:"criteria_used,omitempty"`
	Warnings       []string       `json:"warnings,omitempty"`
}

// ModelStats reports pipeline internals for operational monitoring.
type ModelStats struct {
	CompCount       int     `json:"comp_count"`
	TotalCandidates int     `json:"total_candidates"`
	AdjustedComps   int     `json:"adjusted_comps"`
	ModelTrained    bool    `json:"model_trained"`
	ModelAlpha      float64 `json:"model_alpha,omitempty"`
	ModelRMSELog    float64 `json:"model_rmse_log,omitempty"`
	PenaltyTotal    float64 `json:"penalty_total"`
}

// ValueResult is the engine's sole output. It is created fresh per call
// and immutable once returned; every call yields a well-formed result
// regardless of input quality.
type ValueResult struct {
	Status         string     `json:"status"`
	Classification string     `json:"classification"`
	Confidence     float64    `json:"confidence"`
	MedianPPSF     float64    `json:"median_ppsf"`
	SuggestedRange PriceRange `json:"suggested_price_range"`
	PriceGap       PriceGap   `json:"price_gap"`
	Explain        Explain    `json:"explain"`
	ModelStats     ModelStats `json:"model_stats"`
}

func insufficientResult(criteria string) ValueResult {
	return ValueResult{
		Status:         StatusInsufficientData,
		Classification: ClassInsufficient,
		Explain:        Explain{CriteriaUsed: criteria},
	}
}

func errorResult() ValueResult {
	return ValueResult{
		Status:         StatusError,
		Classification: ClassInsufficient,
	}
}

func statusName(s records.Status) string {
	return s.String()
}
