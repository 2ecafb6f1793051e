package exporter

import (
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"comppulse/internal/valuation"
)

func sampleEntries() []ReportEntry {
	return []ReportEntry{
		{
			SubjectID: "S-1",
			Address:   "123 Oak St, Leander, TX",
			AskPrice:  425000,
			Result: valuation.ValueResult{
				Status:         valuation.StatusSuccess,
				Classification: valuation.ClassFair,
				Confidence:     72.5,
				MedianPPSF:     205.0,
				SuggestedRange: valuation.PriceRange{Low: 400000, High: 440000},
				PriceGap:       valuation.PriceGap{Total: 4500},
				Explain: valuation.Explain{
					TopComps: []valuation.CompSummary{
						{ID: "C-1", Address: "456 Elm Dr", Status: "sold", Price: 420000, AdjustedPrice: 422000, AdjustedPPSF: 205.9, RankScore: 88},
					},
				},
				ModelStats: valuation.ModelStats{CompCount: 6, ModelTrained: true},
			},
		},
		{
			SubjectID: "S-2",
			Address:   "9 Pine Ct",
			AskPrice:  300000,
			Result: valuation.ValueResult{
				Status:         valuation.StatusInsufficientData,
				Classification: valuation.ClassInsufficient,
			},
		},
	}
}

func testCSVWriter(t *testing.T) (*CSVWriter, string) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return NewCSVWriter(dir, logger), dir
}

func TestWriteReportCSV(t *testing.T) {
	w, dir := testCSVWriter(t)

	err := w.WriteReportCSV("report.csv", sampleEntries())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "report.csv"))
	require.NoError(t, err)

	// BOM prefix for Excel
	require.True(t, strings.HasPrefix(string(data), "\xEF\xBB\xBF"))

	reader := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(data), "\xEF\xBB\xBF")))
	rows, err := reader.ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, reportHeaders, rows[0])
	assert.Equal(t, "S-1", rows[1][0])
	assert.Equal(t, "Market Fair", rows[1][4])
	assert.Equal(t, "72.5", rows[1][5])
	assert.Equal(t, "400000", rows[1][7])
	assert.Equal(t, "true", rows[1][11])
	assert.Equal(t, "insufficient_data", rows[2][3])
}

func TestWriteReportCSVAbsolutePath(t *testing.T) {
	w, _ := testCSVWriter(t)
	outDir := t.TempDir()
	path := filepath.Join(outDir, "abs.csv")

	require.NoError(t, w.WriteReportCSV(path, sampleEntries()))
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestWriteReportXLSX(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.xlsx")
	w := NewXLSXWriter(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	require.NoError(t, w.WriteReport(path, sampleEntries()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(reportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "subject_id", rows[0][0])
	assert.Equal(t, "S-1", rows[1][0])
	assert.Equal(t, "Market Fair", rows[1][4])

	compRows, err := f.GetRows(compsSheet)
	require.NoError(t, err)
	require.Len(t, compRows, 2)
	assert.Equal(t, "C-1", compRows[1][1])
	assert.Equal(t, "456 Elm Dr", compRows[1][2])
}
