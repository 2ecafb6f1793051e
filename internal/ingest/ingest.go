// Package ingest loads raw market records from CSV and XLSX listing
// exports. Parsing is tolerant: malformed rows are skipped with a
// warning rather than failing the whole file.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"comppulse/internal/records"
)

// Loader reads listing files into raw records.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a Loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// LoadFile dispatches on the file extension.
func (l *Loader) LoadFile(ctx context.Context, path string) ([]records.RawRecord, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return l.LoadCSV(ctx, path)
	case ".xlsx":
		return l.LoadXLSX(ctx, path)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
	}
}

// LoadCSV reads listing records from a CSV file. The first row is the
// header; column order is discovered from it.
func (l *Loader) LoadCSV(ctx context.Context, path string) ([]records.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	recs, err := l.ReadCSV(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return recs, nil
}

// ReadCSV parses listing records from a CSV stream.
func (l *Loader) ReadCSV(ctx context.Context, r io.Reader) ([]records.RawRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := columnMap(header)
	if err := requireColumns(cols); err != nil {
		return nil, err
	}

	var out []records.RawRecord
	rowNum := 1
	skipped := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			l.logger.WarnContext(ctx, "skipping malformed csv row",
				slog.Int("row", rowNum),
				slog.String("error", err.Error()))
			skipped++
			continue
		}

		rec, err := parseRow(row, cols)
		if err != nil {
			l.logger.WarnContext(ctx, "skipping unparseable row",
				slog.Int("row", rowNum),
				slog.String("error", err.Error()))
			skipped++
			continue
		}
		out = append(out, rec)
	}

	l.logger.InfoContext(ctx, "csv load complete",
		slog.Int("loaded", len(out)),
		slog.Int("skipped", skipped))
	return out, nil
}

// LoadXLSX reads listing records from the first populated sheet of an
// XLSX workbook.
func (l *Loader) LoadXLSX(ctx context.Context, path string) ([]records.RawRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx file: %w", err)
	}
	defer f.Close()

	var rows [][]string
	var sheetName string
	for _, name := range f.GetSheetList() {
		sheetRows, err := f.GetRows(name)
		if err != nil || len(sheetRows) < 2 {
			continue
		}
		rows = trimTrailingEmptyRows(sheetRows)
		sheetName = name
		break
	}
	if sheetName == "" {
		return nil, fmt.Errorf("no populated sheet in %s", filepath.Base(path))
	}

	l.logger.DebugContext(ctx, "reading sheet",
		slog.String("sheet", sheetName),
		slog.Int("rows", len(rows)))

	cols := columnMap(rows[0])
	if err := requireColumns(cols); err != nil {
		return nil, fmt.Errorf("sheet %s: %w", sheetName, err)
	}

	var out []records.RawRecord
	skipped := 0
	for i, row := range rows[1:] {
		rec, err := parseRow(row, cols)
		if err != nil {
			l.logger.WarnContext(ctx, "skipping unparseable row",
				slog.Int("row", i+2),
				slog.String("error", err.Error()))
			skipped++
			continue
		}
		out = append(out, rec)
	}

	l.logger.InfoContext(ctx, "xlsx load complete",
		slog.String("sheet", sheetName),
		slog.Int("loaded", len(out)),
		slog.Int("skipped", skipped))
	return out, nil
}

func trimTrailingEmptyRows(rows [][]string) [][]string {
	// Trim fully-empty trailing rows that excelize reports for styled
	// but unpopulated cells
	last := len(rows)
	for last > 0 && rowEmpty(rows[last-1]) {
		last--
	}
	return rows[:last]
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// columnMap maps normalized header names to their positions.
func columnMap(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		key = strings.ReplaceAll(key, " ", "_")
		cols[key] = i
	}
	return cols
}

var requiredColumns = []string{"id", "price", "sqft", "beds", "status", "address"}

func requireColumns(cols map[string]int) error {
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

func parseRow(row []string, cols map[string]int) (records.RawRecord, error) {
	get := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	price, err := parseFloat(get("price"))
	if err != nil {
		return records.RawRecord{}, fmt.Errorf("price %q: %w", get("price"), err)
	}
	sqft, err := parseFloat(get("sqft"))
	if err != nil {
		return records.RawRecord{}, fmt.Errorf("sqft %q: %w", get("sqft"), err)
	}
	beds, err := parseFloat(get("beds"))
	if err != nil {
		return records.RawRecord{}, fmt.Errorf("beds %q: %w", get("beds"), err)
	}

	rec := records.RawRecord{
		ID:            get("id"),
		Price:         price,
		Sqft:          sqft,
		Beds:          beds,
		BathsFull:     parseFloatOr(get("baths_full"), 0),
		BathsHalf:     parseFloatOr(get("baths_half"), 0),
		Garage:        parseFloatOr(get("garage"), 0),
		LotSqft:       parseFloatOr(get("lot_sqft"), 0),
		YearBuilt:     int(parseFloatOr(get("year_built"), 0)),
		Status:        get("status"),
		Address:       get("address"),
		Subdivision:   get("subdivision"),
		SchoolZone:    get("school_zone"),
		ListingID:     get("listing_id"),
		PlanName:      get("plan_name"),
		ListDate:      get("list_date"),
		SoldDate:      get("sold_date"),
		PropertyType:  get("property_type"),
		BuilderName:   get("builder_name"),
		CommunityName: get("community_name"),
	}

	if lat := get("lat"); lat != "" {
		if v, err := parseFloat(lat); err == nil {
			rec.Lat = &v
		}
	}
	if lng := get("lng"); lng != "" {
		if v, err := parseFloat(lng); err == nil {
			rec.Lng = &v
		}
	}
	return rec, nil
}

// parseFloat accepts currency formatting like "$425,000"
func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	return strconv.ParseFloat(s, 64)
}

func parseFloatOr(s string, fallback float64) float64 {
	v, err := parseFloat(s)
	if err != nil {
		return fallback
	}
	return v
}
