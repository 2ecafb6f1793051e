package adjust

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comppulse/internal/comps"
	"comppulse/internal/hedonic"
	"comppulse/internal/records"
)

func makeSubject() *records.CleanRecord {
	return &records.CleanRecord{
		ID:         "subject",
		Price:      425000,
		Sqft:       2050,
		Beds:       4,
		Baths:      2.5,
		Garage:     2,
		YearBuilt:  2021,
		PPSF:       425000.0 / 2050,
		MonthIndex: 2024*12 + 6,
	}
}

func makeComp(id string, price, sqft float64, monthIndex int) comps.Comparable {
	return comps.Comparable{
		Record: &records.CleanRecord{
			ID:         id,
			Price:      price,
			Sqft:       sqft,
			Beds:       4,
			Baths:      2.5,
			Garage:     2,
			YearBuilt:  2021,
			Status:     records.StatusSold,
			PPSF:       price / sqft,
			MonthIndex: monthIndex,
		},
		Score: 80,
	}
}

// testModel is a hand-built hedonic model with known coefficients so the
// time/feature decomposition is exactly checkable.
func testModel() *hedonic.Model {
	return &hedonic.Model{
		Intercept: 5.0,
		Coefficients: map[string]float64{
			hedonic.FeatLogSqft: 1.0,
			hedonic.FeatBeds:    0.02,
			hedonic.FeatMonth:   0.004,
		},
		FeatureNames: []string{hedonic.FeatLogSqft, hedonic.FeatBeds, hedonic.FeatMonth},
		RMSELog:      0.08,
	}
}

func TestAdjustWithModel(t *testing.T) {
	a := NewAdjuster(nil)
	subject := makeSubject()
	model := testModel()

	t.Run("time effect isolated from feature effect", func(t *testing.T) {
		// Identical features, sold 3 months before the subject's month.
		comp := makeComp("c1", 420000, 2050, subject.MonthIndex-3)
		comp.Record.Beds = subject.Beds

		out := a.AdjustAll(context.Background(), []comps.Comparable{comp}, subject, model)
		require.Len(t, out, 1)
		adj := out[0]

		wantTime := math.Exp(0.004*3) - 1
		assert.InDelta(t, wantTime, adj.TimeAdjPct, 1e-9)
		// Same features: total is pure time, other is zero.
		assert.InDelta(t, wantTime, adj.TotalAdjPct, 1e-9)
		assert.InDelta(t, 0, adj.OtherAdjPct, 1e-9)
		assert.InDelta(t, 420000*(1+wantTime), adj.AdjustedPrice, 0.01)
		assert.True(t, adj.ModelBased)
	})

	t.Run("feature differences land in the other component", func(t *testing.T) {
		// Same month, smaller comp: subject should price higher.
		comp := makeComp("c2", 400000, 1900, subject.MonthIndex)

		out := a.AdjustAll(context.Background(), []comps.Comparable{comp}, subject, model)
		require.Len(t, out, 1)
		adj := out[0]

		assert.InDelta(t, 0, adj.TimeAdjPct, 1e-9)
		assert.Greater(t, adj.OtherAdjPct, 0.0, "bigger subject means upward adjustment")
		assert.InDelta(t, adj.TotalAdjPct, adj.TimeAdjPct+adj.OtherAdjPct, 1e-9)
	})

	t.Run("decomposition sums for mixed differences", func(t *testing.T) {
		comp := makeComp("c3", 410000, 1950, subject.MonthIndex-4)
		comp.Record.Beds = 3

		out := a.AdjustAll(context.Background(), []comps.Comparable{comp}, subject, model)
		require.Len(t, out, 1)
		adj := out[0]
		assert.InDelta(t, adj.TotalAdjPct, adj.TimeAdjPct+adj.OtherAdjPct, 1e-9)
		assert.Equal(t, adj.AdjustedPrice/comp.Record.Sqft, adj.AdjustedPPSF)
	})

	t.Run("degenerate numerics fall back to zero adjustment", func(t *testing.T) {
		model := testModel()
		model.Coefficients[hedonic.FeatMonth] = math.NaN()

		comp := makeComp("c4", 420000, 2050, subject.MonthIndex-2)
		out := a.AdjustAll(context.Background(), []comps.Comparable{comp}, subject, model)
		require.Len(t, out, 1)
		assert.Equal(t, 420000.0, out[0].AdjustedPrice)
		assert.Zero(t, out[0].TotalAdjPct)
	})
}

func TestAdjustHeuristic(t *testing.T) {
	a := NewAdjuster(nil)
	subject := makeSubject()

	t.Run("sqft delta beyond deadband", func(t *testing.T) {
		comp := makeComp("c1", 400000, 1900, subject.MonthIndex)

		out := a.AdjustAll(context.Background(), []comps.Comparable{comp}, subject, nil)
		require.Len(t, out, 1)
		// +150 sqft * $15
		assert.InDelta(t, 400000+150*15, out[0].AdjustedPrice, 0.01)
		assert.False(t, out[0].ModelBased)
	})

	t.Run("sqft delta inside deadband ignored", func(t *testing.T) {
		comp := makeComp("c2", 420000, 2020, subject.MonthIndex)
		out := a.AdjustAll(context.Background(), []comps.Comparable{comp}, subject, nil)
		assert.Equal(t, 420000.0, out[0].AdjustedPrice)
	})

	t.Run("bedroom and bathroom deltas", func(t *testing.T) {
		comp := makeComp("c3", 420000, 2050, subject.MonthIndex)
		comp.Record.Beds = 3    // subject +1 bed: +$8k
		comp.Record.Baths = 2.0 // subject +0.5 bath: +$6k

		out := a.AdjustAll(context.Background(), []comps.Comparable{comp}, subject, nil)
		assert.InDelta(t, 420000+8000+0.5*12000, out[0].AdjustedPrice, 0.01)
	})

	t.Run("bathroom delta under threshold ignored", func(t *testing.T) {
		comp := makeComp("c4", 420000, 2050, subject.MonthIndex)
		comp.Record.Baths = 2.26
		out := a.AdjustAll(context.Background(), []comps.Comparable{comp}, subject, nil)
		assert.Equal(t, 420000.0, out[0].AdjustedPrice)
	})

	t.Run("new construction premium", func(t *testing.T) {
		newSubject := makeSubject()
		newSubject.IsNew = true
		comp := makeComp("c5", 420000, 2050, newSubject.MonthIndex)

		out := a.AdjustAll(context.Background(), []comps.Comparable{comp}, newSubject, nil)
		assert.InDelta(t, 420000+2050*10, out[0].AdjustedPrice, 0.01)
	})

	t.Run("time appreciation beyond one month", func(t *testing.T) {
		comp := makeComp("c6", 420000, 2050, subject.MonthIndex-3)

		out := a.AdjustAll(context.Background(), []comps.Comparable{comp}, subject, nil)
		assert.InDelta(t, 0.003*3, out[0].TimeAdjPct, 1e-9)
		assert.InDelta(t, 420000*(1+0.009), out[0].AdjustedPrice, 0.01)
	})

	t.Run("one month old gets no appreciation", func(t *testing.T) {
		comp := makeComp("c7", 420000, 2050, subject.MonthIndex-1)
		out := a.AdjustAll(context.Background(), []comps.Comparable{comp}, subject, nil)
		assert.Zero(t, out[0].TimeAdjPct)
	})
}

func TestValidateAdjustments(t *testing.T) {
	ok := AdjustedComparable{
		Record:        &records.CleanRecord{ID: "ok", Price: 420000},
		AdjustedPrice: 430000,
		TotalAdjPct:   0.024,
	}
	oversized := AdjustedComparable{
		Record:        &records.CleanRecord{ID: "big", Price: 420000},
		AdjustedPrice: 560000,
		TotalAdjPct:   0.33,
	}

	t.Run("clean set", func(t *testing.T) {
		v := ValidateAdjustments([]AdjustedComparable{ok}, 0)
		assert.True(t, v.Valid)
		assert.Empty(t, v.Warnings)
		assert.Zero(t, v.LargeAdjustments)
	})

	t.Run("oversized adjustment flagged", func(t *testing.T) {
		v := ValidateAdjustments([]AdjustedComparable{ok, oversized}, 0)
		assert.False(t, v.Valid)
		assert.Equal(t, 1, v.LargeAdjustments)
		require.Len(t, v.Warnings, 1)
		assert.Contains(t, v.Warnings[0], "big")
	})

	t.Run("non-positive price flagged", func(t *testing.T) {
		bad := AdjustedComparable{
			Record:        &records.CleanRecord{ID: "neg", Price: 420000},
			AdjustedPrice: -5,
			TotalAdjPct:   -1.2,
		}
		v := ValidateAdjustments([]AdjustedComparable{bad}, 0)
		assert.False(t, v.Valid)
		assert.Len(t, v.Warnings, 2)
	})
}
