package records

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

// Cleaner implements the three-stage hygiene funnel: sanitize raw records,
// deduplicate, then enforce range invariants. The funnel never returns an
// error; invalid input shrinks the usable pool and is reported via counts.
type Cleaner struct {
	logger *slog.Logger

	// Now supplies the reference clock for age-derived fields, injectable
	// for deterministic tests.
	Now func() time.Time
}

// NewCleaner creates a cleaner with the provided logger (nil uses
// slog.Default()).
func NewCleaner(logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{
		logger: logger,
		Now:    time.Now,
	}
}

// Sanitize coerces a raw record into a CleanRecord, computing all derived
// fields. It returns nil when the record is unusable: missing or
// non-positive price, sqft, or beds, or any non-finite numeric field.
func (c *Cleaner) Sanitize(raw RawRecord) *CleanRecord {
	if !isFinite(raw.Price, raw.Sqft, raw.Beds, raw.BathsFull, raw.BathsHalf, raw.Garage, raw.LotSqft) {
		return nil
	}
	if raw.Price <= 0 || raw.Sqft <= 0 || raw.Beds <= 0 {
		return nil
	}

	now := c.Now()
	status := parseStatus(raw.Status)

	schoolZone := NormalizeText(raw.SchoolZone)
	if schoolZone == "" {
		schoolZone = schoolZoneFromAddress(raw.Address)
	}

	rec := &CleanRecord{
		ID:            firstNonEmpty(raw.ID, raw.ListingID),
		Price:         raw.Price,
		Sqft:          raw.Sqft,
		Beds:          raw.Beds,
		Baths:         raw.BathsFull + 0.5*raw.BathsHalf,
		Garage:        raw.Garage,
		LotSqft:       raw.LotSqft,
		YearBuilt:     raw.YearBuilt,
		Status:        status,
		Address:       strings.TrimSpace(raw.Address),
		Subdivision:   NormalizeText(raw.Subdivision),
		SchoolZone:    schoolZone,
		PlanName:      NormalizeText(raw.PlanName),
		Lat:           raw.Lat,
		Lng:           raw.Lng,
		ListDate:      parseDate(raw.ListDate),
		SoldDate:      parseDate(raw.SoldDate),
		PropertyType:  NormalizeText(raw.PropertyType),
		BuilderName:   strings.TrimSpace(raw.BuilderName),
		CommunityName: strings.TrimSpace(raw.CommunityName),
	}

	rec.PPSF = rec.Price / rec.Sqft
	rec.IsNew = status.IsNewConstruction() || rec.YearBuilt >= now.Year()-1
	rec.DedupeID = buildDedupeID(raw, rec)
	rec.DaysOnMarket = daysOnMarket(rec, now)
	rec.MonthIndex = monthIndex(rec, now)

	return rec
}

// Dedupe keeps the first record per dedupe_id, preserving input order.
func (c *Cleaner) Dedupe(recs []*CleanRecord) []*CleanRecord {
	seen := make(map[string]bool, len(recs))
	out := make([]*CleanRecord, 0, len(recs))
	for _, r := range recs {
		if seen[r.DedupeID] {
			continue
		}
		seen[r.DedupeID] = true
		out = append(out, r)
	}
	return out
}

// IsValidRecord enforces the numeric-range invariants. Records failing any
// bound are excluded from the comparable pool, never errored on.
func (c *Cleaner) IsValidRecord(r *CleanRecord) bool {
	maxYear := c.Now().Year() + 2
	return r.Price >= MinPrice && r.Price <= MaxPrice &&
		r.Sqft >= MinSqft && r.Sqft <= MaxSqft &&
		r.Beds >= MinBeds && r.Beds <= MaxBeds &&
		r.Baths >= MinBaths && r.Baths <= MaxBaths &&
		r.PPSF >= MinPPSF && r.PPSF <= MaxPPSF &&
		r.YearBuilt >= MinYearBuilt && r.YearBuilt <= maxYear &&
		r.DaysOnMarket >= 0 && r.DaysOnMarket <= MaxDaysOnMarket
}

// LoadAndClean runs the full funnel: sanitize, drop nils, dedupe, then
// filter by range validity, logging counts at each stage. This is the
// single entry point every downstream component depends on.
func (c *Cleaner) LoadAndClean(ctx context.Context, raw []RawRecord) []*CleanRecord {
	sanitized := make([]*CleanRecord, 0, len(raw))
	for _, rr := range raw {
		if rec := c.Sanitize(rr); rec != nil {
			sanitized = append(sanitized, rec)
		}
	}

	deduped := c.Dedupe(sanitized)

	valid := make([]*CleanRecord, 0, len(deduped))
	for _, r := range deduped {
		if c.IsValidRecord(r) {
			valid = append(valid, r)
		}
	}

	c.logger.InfoContext(ctx, "cleaned market records",
		"raw", len(raw),
		"sanitized", len(sanitized),
		"deduped", len(deduped),
		"valid", len(valid),
	)

	return valid
}

func buildDedupeID(raw RawRecord, rec *CleanRecord) string {
	ext := strings.TrimSpace(raw.ListingID)
	if ext == "" {
		ext = strings.TrimSpace(raw.ID)
	}
	return fmt.Sprintf("%s|%s|%s", ext, NormalizeText(rec.Address), rec.PlanName)
}

func daysOnMarket(rec *CleanRecord, now time.Time) float64 {
	if rec.ListDate == nil {
		return 0
	}
	end := now
	if rec.SoldDate != nil {
		end = *rec.SoldDate
	}
	return end.Sub(*rec.ListDate).Hours() / 24
}

func monthIndex(rec *CleanRecord, now time.Time) int {
	ref := now
	if d := rec.ReferenceDate(); d != nil {
		ref = *d
	}
	return ref.Year()*12 + int(ref.Month())
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "01/02/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func isFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
