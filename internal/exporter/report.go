package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"comppulse/internal/valuation"
)

// ReportEntry pairs one subject with its valuation result.
type ReportEntry struct {
	SubjectID string                `json:"subject_id"`
	Address   string                `json:"address"`
	AskPrice  float64               `json:"ask_price"`
	Result    valuation.ValueResult `json:"result"`
}

var reportHeaders = []string{
	"subject_id", "address", "ask_price",
	"status", "classification", "confidence",
	"median_ppsf", "range_low", "range_high",
	"price_gap_total", "comp_count", "model_trained", "flagged",
}

func reportRow(e ReportEntry) []string {
	r := e.Result
	return []string{
		e.SubjectID,
		e.Address,
		formatMoney(e.AskPrice),
		r.Status,
		r.Classification,
		strconv.FormatFloat(r.Confidence, 'f', 1, 64),
		strconv.FormatFloat(r.MedianPPSF, 'f', 2, 64),
		formatMoney(r.SuggestedRange.Low),
		formatMoney(r.SuggestedRange.High),
		formatMoney(r.PriceGap.Total),
		strconv.Itoa(r.ModelStats.CompCount),
		strconv.FormatBool(r.ModelStats.ModelTrained),
		strconv.FormatBool(r.Explain.Reconciliation.Flagged),
	}
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 0, 64)
}

// WriteReportCSV writes one row per valued subject.
func (w *CSVWriter) WriteReportCSV(filePath string, entries []ReportEntry) error {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, reportRow(e))
	}
	return w.WriteCSV(filePath, WriteOptions{
		Headers:   reportHeaders,
		Records:   rows,
		BOMPrefix: true,
	})
}

// XLSXWriter writes valuation reports as Excel workbooks.
type XLSXWriter struct {
	logger *slog.Logger
}

// NewXLSXWriter creates an XLSXWriter.
func NewXLSXWriter(logger *slog.Logger) *XLSXWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &XLSXWriter{logger: logger}
}

const reportSheet = "Valuations"

// WriteReport writes one workbook with a summary row per subject and a
// comparables sheet holding the top comps behind each valuation.
func (w *XLSXWriter) WriteReport(filePath string, entries []ReportEntry) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(reportSheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	for col, h := range reportHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(reportSheet, cell, h)
	}
	for i, e := range entries {
		for col, v := range reportRow(e) {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			f.SetCellValue(reportSheet, cell, v)
		}
	}

	if err := w.writeCompsSheet(f, entries); err != nil {
		return err
	}

	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}

	w.logger.Info("wrote xlsx report",
		slog.String("path", filePath),
		slog.Int("subjects", len(entries)))
	return nil
}

const compsSheet = "Comparables"

var compHeaders = []string{
	"subject_id", "comp_id", "comp_address", "status",
	"price", "adjusted_price", "adjusted_ppsf",
	"total_adj_pct", "distance_miles", "rank_score",
}

func (w *XLSXWriter) writeCompsSheet(f *excelize.File, entries []ReportEntry) error {
	if _, err := f.NewSheet(compsSheet); err != nil {
		return fmt.Errorf("create comps sheet: %w", err)
	}

	for col, h := range compHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(compsSheet, cell, h)
	}

	row := 2
	for _, e := range entries {
		for _, c := range e.Result.Explain.TopComps {
			values := []interface{}{
				e.SubjectID, c.ID, c.Address, c.Status,
				c.Price, c.AdjustedPrice, c.AdjustedPPSF,
				c.TotalAdjPct, c.DistanceMiles, c.RankScore,
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row)
				f.SetCellValue(compsSheet, cell, v)
			}
			row++
		}
	}
	return nil
}
