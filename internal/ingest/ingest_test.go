package ingest

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoader() *Loader {
	return NewLoader(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func TestReadCSV(t *testing.T) {
	csvData := strings.Join([]string{
		"id,price,sqft,beds,baths_full,baths_half,garage,year_built,status,address,subdivision,lat,lng,sold_date",
		`L-1,"$425,000",2050,4,2,1,2,2021,Sold,"123 Oak St, Leander, TX",Oak Ridge,30.55,-97.85,2024-04-10`,
		"L-2,410000,1980,3,2,0,2,2020,Active,456 Elm Dr,Oak Ridge,,,",
		"L-3,not-a-price,2000,3,2,0,2,2020,Sold,789 Pine Ct,Oak Ridge,,,",
	}, "\n")

	recs, err := testLoader().ReadCSV(context.Background(), strings.NewReader(csvData))
	require.NoError(t, err)
	require.Len(t, recs, 2, "row with bad price should be skipped")

	first := recs[0]
	assert.Equal(t, "L-1", first.ID)
	assert.Equal(t, 425000.0, first.Price)
	assert.Equal(t, 2050.0, first.Sqft)
	assert.Equal(t, 4.0, first.Beds)
	assert.Equal(t, 2.0, first.BathsFull)
	assert.Equal(t, 1.0, first.BathsHalf)
	assert.Equal(t, 2021, first.YearBuilt)
	assert.Equal(t, "Sold", first.Status)
	assert.Equal(t, "123 Oak St, Leander, TX", first.Address)
	assert.Equal(t, "Oak Ridge", first.Subdivision)
	require.NotNil(t, first.Lat)
	assert.InDelta(t, 30.55, *first.Lat, 1e-9)
	assert.Equal(t, "2024-04-10", first.SoldDate)

	second := recs[1]
	assert.Nil(t, second.Lat)
	assert.Nil(t, second.Lng)
	assert.Empty(t, second.SoldDate)
}

func TestReadCSVMissingColumns(t *testing.T) {
	csvData := "id,price,sqft\nL-1,425000,2050\n"

	_, err := testLoader().ReadCSV(context.Background(), strings.NewReader(csvData))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required columns")
	assert.Contains(t, err.Error(), "beds")
}

func TestReadCSVSkipsShortRows(t *testing.T) {
	csvData := strings.Join([]string{
		"id,price,sqft,beds,status,address",
		"L-1,425000,2050,4,Sold,123 Oak St",
		"L-2,,,,,",
	}, "\n")

	recs, err := testLoader().ReadCSV(context.Background(), strings.NewReader(csvData))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "L-1", recs[0].ID)
}

func TestColumnMapNormalizesHeaders(t *testing.T) {
	cols := columnMap([]string{"ID", " Price ", "Year Built"})
	assert.Equal(t, 0, cols["id"])
	assert.Equal(t, 1, cols["price"])
	assert.Equal(t, 2, cols["year_built"])
}

func TestParseFloatCurrency(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		wantErr bool
	}{
		{"425000", 425000, false},
		{"$425,000", 425000, false},
		{" 2050.5 ", 2050.5, false},
		{"", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseFloat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadFileUnsupportedExtension(t *testing.T) {
	_, err := testLoader().LoadFile(context.Background(), "listings.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}
