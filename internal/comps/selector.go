// Package comps selects and ranks comparable market records for a subject
// property using iterative constraint relaxation, and provides the shared
// geographic and feature-distance helpers other components reuse.
package comps

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"comppulse/internal/records"
)

// MaxComparables caps the number of ranked comparables returned per call.
const MaxComparables = 15

// Relaxation tier labels, in the order the selector tries them. The two
// terminal labels mark searches that exhausted every tier.
const (
	TierStrict        = "strict"
	TierRelaxedTime   = "relaxed_time"
	TierRelaxedRadius = "relaxed_radius"
	TierRelaxedSqft   = "relaxed_sqft"
	TierRelaxedBeds   = "relaxed_beds"
	TierRelaxedYear   = "relaxed_year"
	TierFallback      = "fallback"
	TierInsufficient  = "insufficient"
)

// tier describes one set of matching constraints. Tiers loosen exactly one
// dimension at a time and never re-tighten an already-relaxed one.
type tier struct {
	name           string
	lookbackDays   float64
	maxRadiusMiles float64 // applied when no subdivision/school-zone match
	sqftTolPct     float64
	bedsTol        float64
	yearTol        int
	matchType      bool
}

// relaxationTiers is the fixed strict-to-loose search order.
var relaxationTiers = []tier{
	{TierStrict, 90, 1.0, 0.15, 1, 5, true},
	{TierRelaxedTime, 180, 1.0, 0.15, 1, 5, true},
	{TierRelaxedRadius, 180, 2.0, 0.15, 1, 5, true},
	{TierRelaxedSqft, 180, 2.0, 0.20, 1, 5, true},
	{TierRelaxedBeds, 180, 2.0, 0.20, 2, 7, true},
	{TierRelaxedYear, 180, 2.0, 0.20, 2, 10, false},
}

// Comparable is a ranked match from the candidate pool.
type Comparable struct {
	Record        *records.CleanRecord `json:"record"`
	Score         float64              `json:"score"`
	DistanceMiles float64              `json:"distance_miles"`
}

// Result is the outcome of a comparable search. CriteriaUsed names the
// tier that satisfied the minimum count, or "fallback"/"insufficient"
// when every tier was exhausted.
type Result struct {
	Comparables     []Comparable `json:"comparables"`
	CriteriaUsed    string       `json:"criteria_used"`
	TotalCandidates int          `json:"total_candidates"`
}

// Selector finds comparables via iterative constraint relaxation.
type Selector struct {
	logger *slog.Logger

	// Now anchors the recency window, injectable for deterministic tests.
	Now func() time.Time
}

// NewSelector creates a selector with the provided logger (nil uses
// slog.Default()).
func NewSelector(logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{logger: logger, Now: time.Now}
}

// FindComps searches the pool for comparables to the subject, trying each
// relaxation tier in order and stopping at the first one that yields at
// least minComps matches. When no tier qualifies it returns the widest
// tier's matches labeled "fallback" (if they meet minComps) or
// "insufficient" — a terminal low-confidence outcome, not an error.
//
// The subject's own record is always excluded from the result.
func (s *Selector) FindComps(ctx context.Context, subject *records.CleanRecord, pool []*records.CleanRecord, minComps int) Result {
	if minComps < 1 {
		minComps = 1
	}

	candidates := make([]*records.CleanRecord, 0, len(pool))
	for _, r := range pool {
		if r.ID == subject.ID || (r.DedupeID != "" && r.DedupeID == subject.DedupeID) {
			continue
		}
		candidates = append(candidates, r)
	}

	now := s.Now()
	var widest []Comparable
	for _, t := range relaxationTiers {
		matches := s.matchTier(subject, candidates, t, now)
		s.logger.DebugContext(ctx, "comparable tier evaluated",
			"tier", t.name,
			"matches", len(matches),
			"min_comps", minComps,
		)

		if len(matches) >= minComps {
			return Result{
				Comparables:     rankAndCap(subject, matches, now),
				CriteriaUsed:    t.name,
				TotalCandidates: len(candidates),
			}
		}
		widest = matches
	}

	// Any tier that meets minComps returns inside the loop, the widest
	// tier included, so len(widest) < minComps holds here and the label
	// is always "insufficient". The fallback branch only fires if the
	// tier table ever stops ending with its widest entry.
	label := TierInsufficient
	if len(widest) >= minComps {
		label = TierFallback
	}
	s.logger.InfoContext(ctx, "comparable search exhausted all tiers",
		"matches", len(widest),
		"label", label,
	)
	return Result{
		Comparables:     rankAndCap(subject, widest, now),
		CriteriaUsed:    label,
		TotalCandidates: len(candidates),
	}
}

func (s *Selector) matchTier(subject *records.CleanRecord, candidates []*records.CleanRecord, t tier, now time.Time) []Comparable {
	var matches []Comparable
	for _, c := range candidates {
		dist := MilesBetween(subject, c)

		if !locationMatch(subject, c, t, dist) {
			continue
		}
		if !withinLookback(c, now, t.lookbackDays) {
			continue
		}
		if math.Abs(subject.Beds-c.Beds) > t.bedsTol {
			continue
		}
		if subject.Sqft > 0 && math.Abs(subject.Sqft-c.Sqft)/subject.Sqft > t.sqftTolPct {
			continue
		}
		if abs(subject.YearBuilt-c.YearBuilt) > t.yearTol {
			continue
		}
		if t.matchType && subject.PropertyType != "" && c.PropertyType != "" && subject.PropertyType != c.PropertyType {
			continue
		}

		matches = append(matches, Comparable{Record: c, DistanceMiles: dist})
	}
	return matches
}

// locationMatch passes on a shared subdivision or school zone; otherwise
// the candidate must fall within the tier's radius.
func locationMatch(subject, c *records.CleanRecord, t tier, dist float64) bool {
	if sameArea(subject, c) {
		return true
	}
	return dist <= t.maxRadiusMiles
}

func sameArea(a, b *records.CleanRecord) bool {
	if a.Subdivision != "" && a.Subdivision == b.Subdivision {
		return true
	}
	return a.SchoolZone != "" && a.SchoolZone == b.SchoolZone
}

// withinLookback checks the record's reference date against the tier's
// recency window. Records without any date are assumed current.
func withinLookback(c *records.CleanRecord, now time.Time, lookbackDays float64) bool {
	ref := c.ReferenceDate()
	if ref == nil {
		return true
	}
	age := now.Sub(*ref).Hours() / 24
	return age >= 0 && age <= lookbackDays
}

// rankAndCap orders matches by weighted desirability and truncates to
// MaxComparables. The weighting favors reliable statuses and close
// locations, then size, bedrooms, recency, and price-per-sqft agreement.
func rankAndCap(subject *records.CleanRecord, matches []Comparable, now time.Time) []Comparable {
	for i := range matches {
		matches[i].Score = rankScore(subject, matches[i], now)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > MaxComparables {
		matches = matches[:MaxComparables]
	}
	return matches
}

func rankScore(subject *records.CleanRecord, m Comparable, now time.Time) float64 {
	c := m.Record

	return c.Status.Reliability()*0.25 +
		locationScore(subject, c, m.DistanceMiles)*0.25 +
		similarityScore(subject.Sqft, c.Sqft, 0.25)*0.20 +
		bedroomScore(subject.Beds, c.Beds)*0.10 +
		recencyScore(c, now)*0.10 +
		similarityScore(subject.PPSF, c.PPSF, 0.30)*0.10
}

func locationScore(subject, c *records.CleanRecord, dist float64) float64 {
	if subject.Subdivision != "" && subject.Subdivision == c.Subdivision {
		return 100
	}
	if subject.SchoolZone != "" && subject.SchoolZone == c.SchoolZone {
		return 90
	}
	score := 100 - dist*25
	if score < 0 {
		return 0
	}
	return score
}

// similarityScore maps a relative difference onto 0-100, hitting 0 once
// the difference reaches tolPct of the subject value.
func similarityScore(subjectVal, compVal, tolPct float64) float64 {
	if subjectVal <= 0 {
		return 0
	}
	rel := math.Abs(subjectVal-compVal) / subjectVal
	if rel >= tolPct {
		return 0
	}
	return 100 * (1 - rel/tolPct)
}

func bedroomScore(subjectBeds, compBeds float64) float64 {
	score := 100 - math.Abs(subjectBeds-compBeds)*25
	if score < 0 {
		return 0
	}
	return score
}

func recencyScore(c *records.CleanRecord, now time.Time) float64 {
	ref := c.ReferenceDate()
	if ref == nil {
		return 50
	}
	ageDays := now.Sub(*ref).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	score := 100 * (1 - ageDays/365)
	if score < 0 {
		return 0
	}
	return score
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
