package comps

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comppulse/internal/records"
)

var testNow = time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

func newTestSelector() *Selector {
	s := NewSelector(nil)
	s.Now = func() time.Time { return testNow }
	return s
}

// makeRecord builds a sold record near the test subject; mutate to taste.
func makeRecord(id string, price, sqft float64, daysAgo int) *records.CleanRecord {
	lat, lng := 30.55, -97.85
	sold := testNow.AddDate(0, 0, -daysAgo)
	return &records.CleanRecord{
		ID:           id,
		DedupeID:     id,
		Price:        price,
		Sqft:         sqft,
		Beds:         4,
		Baths:        2.5,
		Garage:       2,
		YearBuilt:    2021,
		Status:       records.StatusSold,
		Subdivision:  "oak ridge",
		SchoolZone:   "leander",
		PropertyType: "single family",
		Lat:          &lat,
		Lng:          &lng,
		SoldDate:     &sold,
		PPSF:         price / sqft,
	}
}

func makeSubject() *records.CleanRecord {
	s := makeRecord("subject", 425000, 2050, 0)
	s.Status = records.StatusActive
	s.SoldDate = nil
	return s
}

func TestFindCompsStrictTier(t *testing.T) {
	sel := newTestSelector()
	subject := makeSubject()

	pool := []*records.CleanRecord{
		makeRecord("c1", 420000, 2000, 30),
		makeRecord("c2", 430000, 2100, 45),
		makeRecord("c3", 418000, 2080, 60),
	}

	res := sel.FindComps(context.Background(), subject, pool, 2)
	assert.Equal(t, TierStrict, res.CriteriaUsed)
	assert.Len(t, res.Comparables, 3)
	assert.Equal(t, 3, res.TotalCandidates)
}

func TestFindCompsExcludesSubject(t *testing.T) {
	sel := newTestSelector()
	subject := makeSubject()

	pool := []*records.CleanRecord{
		subject,
		makeRecord("c1", 420000, 2000, 30),
		makeRecord("c2", 430000, 2100, 45),
	}

	res := sel.FindComps(context.Background(), subject, pool, 1)
	for _, c := range res.Comparables {
		assert.NotEqual(t, subject.ID, c.Record.ID)
	}
	assert.Equal(t, 2, res.TotalCandidates)
}

func TestFindCompsRelaxation(t *testing.T) {
	sel := newTestSelector()
	subject := makeSubject()

	t.Run("stale comps relax the time window", func(t *testing.T) {
		pool := []*records.CleanRecord{
			makeRecord("c1", 420000, 2000, 120), // outside 90d, inside 180d
			makeRecord("c2", 430000, 2100, 150),
		}
		res := sel.FindComps(context.Background(), subject, pool, 2)
		assert.Equal(t, TierRelaxedTime, res.CriteriaUsed)
	})

	t.Run("oversized comps relax sqft tolerance", func(t *testing.T) {
		pool := []*records.CleanRecord{
			makeRecord("c1", 480000, 2400, 30), // +17% sqft: needs the 20% tier
			makeRecord("c2", 478000, 2420, 45),
		}
		res := sel.FindComps(context.Background(), subject, pool, 2)
		assert.Equal(t, TierRelaxedSqft, res.CriteriaUsed)
	})

	t.Run("bed count mismatch relaxes beds", func(t *testing.T) {
		pool := make([]*records.CleanRecord, 0, 2)
		for i := 0; i < 2; i++ {
			r := makeRecord(fmt.Sprintf("c%d", i), 430000, 2100, 30)
			r.Beds = 6 // delta 2: beyond the +-1 of earlier tiers
			pool = append(pool, r)
		}
		res := sel.FindComps(context.Background(), subject, pool, 2)
		assert.Equal(t, TierRelaxedBeds, res.CriteriaUsed)
	})

	t.Run("property type dropped only in the widest tier", func(t *testing.T) {
		pool := make([]*records.CleanRecord, 0, 2)
		for i := 0; i < 2; i++ {
			r := makeRecord(fmt.Sprintf("c%d", i), 430000, 2100, 30)
			r.PropertyType = "townhome"
			pool = append(pool, r)
		}
		res := sel.FindComps(context.Background(), subject, pool, 2)
		assert.Equal(t, TierRelaxedYear, res.CriteriaUsed)
	})

	t.Run("insufficient when nothing matches", func(t *testing.T) {
		pool := []*records.CleanRecord{
			makeRecord("c1", 900000, 4500, 30), // hopeless size mismatch
		}
		res := sel.FindComps(context.Background(), subject, pool, 2)
		assert.Equal(t, TierInsufficient, res.CriteriaUsed)
		assert.Empty(t, res.Comparables)
	})
}

func TestFindCompsCapsAtFifteen(t *testing.T) {
	sel := newTestSelector()
	subject := makeSubject()

	pool := make([]*records.CleanRecord, 0, 25)
	for i := 0; i < 25; i++ {
		pool = append(pool, makeRecord(fmt.Sprintf("c%d", i), 420000+float64(i)*1000, 2050, 30+i))
	}

	res := sel.FindComps(context.Background(), subject, pool, 2)
	assert.Len(t, res.Comparables, MaxComparables)
	assert.Equal(t, 25, res.TotalCandidates)
}

func TestFindCompsRanking(t *testing.T) {
	sel := newTestSelector()
	subject := makeSubject()

	sold := makeRecord("sold", 425000, 2050, 20)
	tbb := makeRecord("tbb", 425000, 2050, 20)
	tbb.Status = records.StatusToBeBuilt
	tbb.SoldDate = nil

	res := sel.FindComps(context.Background(), subject, []*records.CleanRecord{tbb, sold}, 1)
	require.Len(t, res.Comparables, 2)
	assert.Equal(t, "sold", res.Comparables[0].Record.ID,
		"sold status must outrank to-be-built at equal features")
	assert.Greater(t, res.Comparables[0].Score, res.Comparables[1].Score)
}

func TestMilesBetween(t *testing.T) {
	t.Run("known distance", func(t *testing.T) {
		a := makeRecord("a", 400000, 2000, 10)
		b := makeRecord("b", 400000, 2000, 10)
		// Austin to Round Rock: roughly 16 miles
		*a.Lat, *a.Lng = 30.2672, -97.7431
		*b.Lat, *b.Lng = 30.5083, -97.6789
		d := MilesBetween(a, b)
		assert.InDelta(t, 17, d, 2)
	})

	t.Run("identical points", func(t *testing.T) {
		a := makeRecord("a", 400000, 2000, 10)
		b := makeRecord("b", 400000, 2000, 10)
		assert.InDelta(t, 0, MilesBetween(a, b), 1e-9)
	})

	t.Run("missing coordinates assumed nearby", func(t *testing.T) {
		a := makeRecord("a", 400000, 2000, 10)
		b := makeRecord("b", 400000, 2000, 10)
		b.Lat, b.Lng = nil, nil
		assert.Equal(t, DefaultAssumedDistanceMiles, MilesBetween(a, b))
	})
}

func TestFeatureDistance(t *testing.T) {
	subject := makeSubject()

	t.Run("identical records score zero-ish", func(t *testing.T) {
		twin := makeRecord("twin", subject.Price, subject.Sqft, 0)
		twin.DaysOnMarket = subject.DaysOnMarket
		d := FeatureDistance(subject, twin)
		assert.Less(t, d, 0.05)
	})

	t.Run("bounded in unit interval", func(t *testing.T) {
		far := makeRecord("far", 900000, 9000, 300)
		far.Beds = 8
		far.Baths = 9
		far.YearBuilt = 1950
		far.DaysOnMarket = 900
		*far.Lat, *far.Lng = 29.0, -95.0
		d := FeatureDistance(subject, far)
		assert.GreaterOrEqual(t, d, 0.0)
		assert.LessOrEqual(t, d, 1.0)
	})

	t.Run("monotone in sqft delta", func(t *testing.T) {
		near := makeRecord("near", 425000, 2100, 0)
		farther := makeRecord("farther", 425000, 2600, 0)
		assert.Less(t, FeatureDistance(subject, near), FeatureDistance(subject, farther))
	})
}
