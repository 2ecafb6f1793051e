package stats

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedian(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		expected float64
	}{
		{"empty slice", []float64{}, 0},
		{"single value", []float64{42}, 42},
		{"odd count", []float64{3, 1, 2}, 2},
		{"even count", []float64{4, 1, 3, 2}, 2.5},
		{"repeated values", []float64{5, 5, 5, 5}, 5},
		{"negative values", []float64{-3, -1, -2}, -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Median(tt.values))
		})
	}
}

func TestMedianInputUnmodified(t *testing.T) {
	values := []float64{9, 1, 5, 3}
	Median(values)
	assert.Equal(t, []float64{9, 1, 5, 3}, values)
}

func TestPercentile(t *testing.T) {
	values := []float64{15, 20, 35, 40, 50}

	t.Run("bounds", func(t *testing.T) {
		p0, err := Percentile(values, 0)
		require.NoError(t, err)
		assert.Equal(t, 15.0, p0)

		p100, err := Percentile(values, 100)
		require.NoError(t, err)
		assert.Equal(t, 50.0, p100)
	})

	t.Run("linear interpolation", func(t *testing.T) {
		p40, err := Percentile(values, 40)
		require.NoError(t, err)
		assert.InDelta(t, 29.0, p40, 1e-9)
	})

	t.Run("out of range", func(t *testing.T) {
		_, err := Percentile(values, -1)
		assert.Error(t, err)
		_, err = Percentile(values, 101)
		assert.Error(t, err)
	})

	t.Run("empty returns zero", func(t *testing.T) {
		p, err := Percentile(nil, 50)
		require.NoError(t, err)
		assert.Equal(t, 0.0, p)
	})
}

// Percentile and median must agree regardless of input order, and the
// quartiles must bracket the median for any non-empty sample.
func TestOrderStatisticInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	values := make([]float64, 101)
	for i := range values {
		values[i] = rng.Float64() * 500
	}

	med := Median(values)

	shuffled := make([]float64, len(values))
	copy(shuffled, values)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	assert.Equal(t, med, Median(shuffled), "median must be order-independent")

	p25, err := Percentile(values, 25)
	require.NoError(t, err)
	p75, err := Percentile(values, 75)
	require.NoError(t, err)
	assert.LessOrEqual(t, p25, med)
	assert.LessOrEqual(t, med, p75)
}

func TestWinsorize(t *testing.T) {
	t.Run("clips to percentile bounds", func(t *testing.T) {
		values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 100}

		clipped, err := Winsorize(values, 10, 90)
		require.NoError(t, err)
		require.Len(t, clipped, len(values))

		low, err := Percentile(values, 10)
		require.NoError(t, err)
		high, err := Percentile(values, 90)
		require.NoError(t, err)

		for _, v := range clipped {
			assert.GreaterOrEqual(t, v, low)
			assert.LessOrEqual(t, v, high)
		}
	})

	t.Run("invalid bounds", func(t *testing.T) {
		_, err := Winsorize([]float64{1, 2, 3}, 90, 10)
		assert.Error(t, err)
		_, err = Winsorize([]float64{1, 2, 3}, 50, 50)
		assert.Error(t, err)
	})

	t.Run("empty input", func(t *testing.T) {
		clipped, err := Winsorize(nil, 10, 90)
		require.NoError(t, err)
		assert.Empty(t, clipped)
	})

	t.Run("preserves interior values and order", func(t *testing.T) {
		values := []float64{200, 210, 205, 202, 208}
		clipped, err := Winsorize(values, 0, 100)
		require.NoError(t, err)
		assert.Equal(t, values, clipped)
	})
}

func TestMAD(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		expected float64
	}{
		{"empty", []float64{}, 0},
		{"constant", []float64{7, 7, 7}, 0},
		{"symmetric spread", []float64{1, 2, 3, 4, 5}, 1},
		{"outlier resistant", []float64{1, 2, 3, 4, 1000}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MAD(tt.values))
		})
	}
}

func TestCoeffVariation(t *testing.T) {
	t.Run("zero mean", func(t *testing.T) {
		assert.Equal(t, 0.0, CoeffVariation([]float64{-1, 1}))
	})

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, 0.0, CoeffVariation(nil))
	})

	t.Run("constant values", func(t *testing.T) {
		assert.Equal(t, 0.0, CoeffVariation([]float64{5, 5, 5}))
	})

	t.Run("known dispersion", func(t *testing.T) {
		// mean 200, population std 10
		cv := CoeffVariation([]float64{190, 200, 210, 190, 200, 210})
		assert.InDelta(t, 0.0408, cv, 0.001)
	})
}

func TestRobustBandPct(t *testing.T) {
	t.Run("empty input defaults", func(t *testing.T) {
		assert.Equal(t, DefaultBandPct, RobustBandPct(nil, 0))
	})

	t.Run("tight market clamps to floor", func(t *testing.T) {
		band := RobustBandPct([]float64{204, 205, 206, 205, 205, 206}, 0)
		assert.GreaterOrEqual(t, band, 0.02)
		assert.LessOrEqual(t, band, 0.05)
	})

	t.Run("dispersed market widens", func(t *testing.T) {
		band := RobustBandPct([]float64{180, 220, 190, 240, 200, 210}, 0)
		assert.Greater(t, band, 0.08)
	})

	t.Run("always within clamps", func(t *testing.T) {
		samples := [][]float64{
			{100, 100, 100},
			{1, 500, 1000},
			{205, 206, 204},
			{50, 450, 250, 120, 380},
		}
		for _, s := range samples {
			band := RobustBandPct(s, 0)
			assert.GreaterOrEqual(t, band, MinBandPct)
			assert.LessOrEqual(t, band, MaxBandPct)
		}
	})

	t.Run("monotone in dispersion", func(t *testing.T) {
		narrow := RobustBandPct([]float64{200, 202, 204, 206, 208}, 0)
		wide := RobustBandPct([]float64{160, 180, 205, 230, 250}, 0)
		assert.LessOrEqual(t, narrow, wide)
	})

	t.Run("zero MAD falls back to IQR", func(t *testing.T) {
		// Median-heavy sample: MAD is 0 but the IQR is not.
		band := RobustBandPct([]float64{200, 200, 200, 200, 200, 180, 220, 240}, 0)
		assert.GreaterOrEqual(t, band, MinBandPct)
	})

	t.Run("respects precomputed median", func(t *testing.T) {
		values := []float64{190, 200, 210}
		assert.Equal(t, RobustBandPct(values, 200), RobustBandPct(values, 0))
	})
}
