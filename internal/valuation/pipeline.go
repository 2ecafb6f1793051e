// Package valuation orchestrates the comparable-pricing pipeline: data
// hygiene, comparable selection, optional hedonic-model training, price
// adjustment, robust banding, classification, confidence scoring, and
// dual-valuation reconciliation.
//
// The engine is purely computational: no I/O, no shared state, and one
// deterministic ValueResult per call. Batch callers may run any number
// of valuations concurrently with zero coordination.
package valuation

import (
	"context"
	"log/slog"
	"math"
	"time"

	"comppulse/internal/adjust"
	"comppulse/internal/comps"
	"comppulse/internal/hedonic"
	"comppulse/internal/quality"
	"comppulse/internal/records"
	"comppulse/internal/stats"
)

// Winsorization bounds for the adjusted price-per-sqft sample.
const (
	winsorLowerPct = 10.0
	winsorUpperPct = 90.0
)

// minClassifyThreshold floors the classification band so razor-thin
// markets don't flip classifications on sub-5% noise.
const minClassifyThreshold = 0.05

// reconciliationTolerance is the max disagreement (percent) between the
// median-based and hedonic estimates before confidence is docked.
const (
	reconciliationTolerance  = 5.0
	reconciliationConfidence = 20.0
)

// Suggested-range parameters: 90% log-normal prediction interval with a
// model, flat band without.
const (
	predictionIntervalZ = 1.645
	flatRangePct        = 0.15
)

const topCompsInExplain = 3

// Engine runs valuations. It holds no per-call state; a single Engine is
// safe for concurrent use.
type Engine struct {
	logger   *slog.Logger
	cleaner  *records.Cleaner
	selector *comps.Selector
	adjuster *adjust.Adjuster
}

// NewEngine creates a valuation engine with the provided logger (nil uses
// slog.Default()).
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger:   logger,
		cleaner:  records.NewCleaner(logger),
		selector: comps.NewSelector(logger),
		adjuster: adjust.NewAdjuster(logger),
	}
}

// SetClock pins the reference clock for age-derived fields, making a
// valuation a pure function of its inputs. Intended for tests and
// replay tooling.
func (e *Engine) SetClock(now func() time.Time) {
	e.cleaner.Now = now
	e.selector.Now = now
}

// ValueSubject values one subject against a market pool. It never
// returns an error and never panics past its boundary: unexpected
// failures surface as a well-formed result with status "error".
func (e *Engine) ValueSubject(ctx context.Context, subjectRaw records.RawRecord, marketRaw []records.RawRecord, opts Options) (result ValueResult) {
	opts = opts.Normalize()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "valuation pipeline panicked",
				"subject_id", subjectRaw.ID,
				"panic", r,
			)
			result = errorResult()
		}
	}()

	subject := e.cleaner.Sanitize(subjectRaw)
	if subject == nil {
		e.logger.InfoContext(ctx, "subject failed sanitation",
			"subject_id", subjectRaw.ID,
		)
		return insufficientResult("")
	}

	pool := e.cleaner.LoadAndClean(ctx, marketRaw)

	selection := e.selector.FindComps(ctx, subject, pool, opts.MinComps)
	if len(selection.Comparables) < opts.MinComps {
		e.logger.InfoContext(ctx, "not enough comparables",
			"subject_id", subject.ID,
			"found", len(selection.Comparables),
			"min_comps", opts.MinComps,
			"criteria", selection.CriteriaUsed,
		)
		res := insufficientResult(selection.CriteriaUsed)
		res.ModelStats.CompCount = len(selection.Comparables)
		res.ModelStats.TotalCandidates = selection.TotalCandidates
		return res
	}

	model, trainErr := e.maybeTrainModel(ctx, pool, opts)
	if trainErr != nil {
		return errorResult()
	}

	adjusted := e.adjuster.AdjustAll(ctx, selection.Comparables, subject, model)
	validation := adjust.ValidateAdjustments(adjusted, opts.MaxAdjustmentPct/100)

	ppsf := make([]float64, len(adjusted))
	for i, a := range adjusted {
		ppsf[i] = a.AdjustedPPSF
	}

	winsorized, err := stats.Winsorize(ppsf, winsorLowerPct, winsorUpperPct)
	if err != nil {
		// Bounds are compile-time constants; reaching this is a bug.
		panic(err)
	}

	medianPPSF := stats.Median(winsorized)
	p25, _ := stats.Percentile(winsorized, 25)
	p75, _ := stats.Percentile(winsorized, 75)
	bandPct := stats.RobustBandPct(winsorized, medianPPSF)

	subjectPPSF := subject.Price / subject.Sqft
	deltaPPSF := subjectPPSF - medianPPSF
	threshold := math.Max(minClassifyThreshold, bandPct)
	classification := classify(deltaPPSF, medianPPSF, threshold)

	penalties := quality.CalculatePenalties(adjusted, subject, medianPPSF)
	confidence := quality.ConfidenceScore(winsorized, adjusted, subject, penalties)

	reconciliation, confidence := e.reconcile(ctx, subject, model, medianPPSF, confidence)

	result = ValueResult{
		Status:         StatusSuccess,
		Classification: classification,
		Confidence:     confidence,
		MedianPPSF:     medianPPSF,
		SuggestedRange: suggestedRange(subject, model, medianPPSF, reconciliation),
		PriceGap: PriceGap{
			PerSqft: deltaPPSF,
			Total:   deltaPPSF * subject.Sqft,
		},
		Explain: Explain{
			TopComps: summarizeComps(adjusted, topCompsInExplain),
			Band: BandStats{
				MedianPPSF: medianPPSF,
				P25:        p25,
				P75:        p75,
				BandPct:    bandPct,
				Threshold:  threshold,
			},
			Reconciliation: reconciliation,
			CriteriaUsed:   selection.CriteriaUsed,
			Warnings:       validation.Warnings,
		},
		ModelStats: ModelStats{
			CompCount:       len(selection.Comparables),
			TotalCandidates: selection.TotalCandidates,
			AdjustedComps:   len(adjusted),
			ModelTrained:    model != nil,
			PenaltyTotal:    penalties.Total,
		},
	}
	if model != nil {
		result.ModelStats.ModelAlpha = model.Alpha
		result.ModelStats.ModelRMSELog = model.RMSELog
	}

	e.logger.InfoContext(ctx, "valuation complete",
		"subject_id", subject.ID,
		"classification", classification,
		"confidence", confidence,
		"median_ppsf", medianPPSF,
		"comps", len(adjusted),
		"criteria", selection.CriteriaUsed,
		"model_trained", model != nil,
		"duration", time.Since(start),
	)

	return result
}

// maybeTrainModel trains the hedonic model when enabled and enough sold
// records exist. Training failure is recoverable when heuristic fallback
// is allowed; otherwise it escalates to a pipeline error.
func (e *Engine) maybeTrainModel(ctx context.Context, pool []*records.CleanRecord, opts Options) (*hedonic.Model, error) {
	if !*opts.UseHedonicModel {
		return nil, nil
	}

	soldCount := 0
	for _, r := range pool {
		if r.Status == records.StatusSold {
			soldCount++
		}
	}
	if soldCount < hedonic.MinTrainingRecords {
		e.logger.DebugContext(ctx, "skipping hedonic training",
			"sold_records", soldCount,
			"required", hedonic.MinTrainingRecords,
		)
		return nil, nil
	}

	model, err := hedonic.Train(ctx, pool, e.logger)
	if err != nil {
		if *opts.FallbackToHeuristics {
			e.logger.WarnContext(ctx, "hedonic training failed, falling back to heuristics",
				"error", err,
			)
			return nil, nil
		}
		e.logger.ErrorContext(ctx, "hedonic training failed with fallback disabled",
			"error", err,
		)
		return nil, err
	}
	return model, nil
}

func classify(deltaPPSF, medianPPSF, threshold float64) string {
	switch {
	case deltaPPSF < -medianPPSF*threshold:
		return ClassBelow
	case deltaPPSF > medianPPSF*threshold:
		return ClassAbove
	default:
		return ClassFair
	}
}

// reconcile cross-checks the median-based estimate against the hedonic
// prediction. Disagreement above the tolerance flags the result and
// docks confidence, floored at zero.
func (e *Engine) reconcile(ctx context.Context, subject *records.CleanRecord, model *hedonic.Model, medianPPSF, confidence float64) (Reconciliation, float64) {
	pMed := medianPPSF * subject.Sqft
	pHed := pMed
	if model != nil {
		pHed = model.PredictPrice(hedonic.ExtractFeatures(subject, model.KnownSubdivisions, 0))
	}

	rec := Reconciliation{MedianBased: pMed, HedonicBased: pHed}
	if avg := (pMed + pHed) / 2; avg > 0 {
		rec.DiffPct = math.Abs(pMed-pHed) / avg * 100
	}

	if rec.DiffPct > reconciliationTolerance {
		rec.Flagged = true
		confidence = math.Max(0, confidence-reconciliationConfidence)
		e.logger.WarnContext(ctx, "dual valuation disagreement",
			"subject_id", subject.ID,
			"median_based", pMed,
			"hedonic_based", pHed,
			"diff_pct", rec.DiffPct,
		)
	}
	return rec, confidence
}

// suggestedRange is a 90% log-normal prediction interval around the
// hedonic estimate when a model exists, otherwise a flat band around the
// median-based estimate.
func suggestedRange(subject *records.CleanRecord, model *hedonic.Model, medianPPSF float64, rec Reconciliation) PriceRange {
	if model != nil {
		// Floor the spread so a near-perfect in-sample fit still yields a
		// non-degenerate range.
		spread := math.Exp(predictionIntervalZ * math.Max(model.RMSELog, 0.01))
		return PriceRange{
			Low:  rec.HedonicBased / spread,
			High: rec.HedonicBased * spread,
		}
	}

	base := medianPPSF * subject.Sqft
	return PriceRange{
		Low:  base * (1 - flatRangePct),
		High: base * (1 + flatRangePct),
	}
}

func summarizeComps(adjusted []adjust.AdjustedComparable, limit int) []CompSummary {
	if len(adjusted) < limit {
		limit = len(adjusted)
	}
	out := make([]CompSummary, 0, limit)
	for _, a := range adjusted[:limit] {
		out = append(out, CompSummary{
			ID:            a.Record.ID,
			Address:       a.Record.Address,
			Status:        statusName(a.Record.Status),
			Price:         a.Record.Price,
			AdjustedPrice: a.AdjustedPrice,
			PPSF:          a.Record.PPSF,
			AdjustedPPSF:  a.AdjustedPPSF,
			TotalAdjPct:   a.TotalAdjPct,
			TimeAdjPct:    a.TimeAdjPct,
			DistanceMiles: a.DistanceMiles,
			RankScore:     a.RankScore,
		})
	}
	return out
}
