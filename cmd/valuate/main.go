// Command valuate runs the valuation pipeline against a listing file
// without the HTTP server. Subjects are active or pending listings in
// the file; each one is valued against the full market snapshot and the
// results are written to a CSV or XLSX report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"comppulse/internal/exporter"
	"comppulse/internal/ingest"
	"comppulse/internal/records"
	"comppulse/internal/valuation"
)

func main() {
	marketFile := flag.String("market", "", "listing file to value (csv or xlsx)")
	subjectID := flag.String("subject", "", "value only this listing ID (default: all active/pending listings)")
	outDir := flag.String("out", "reports", "output directory for the report")
	format := flag.String("format", "csv", "report format: csv or xlsx")
	minComps := flag.Int("min-comps", 2, "minimum comparables required")
	noModel := flag.Bool("no-model", false, "disable the hedonic model, heuristic adjustments only")
	asJSON := flag.Bool("json", false, "print results as JSON to stdout instead of writing a report")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if *marketFile == "" {
		logger.Error("missing required -market flag")
		flag.Usage()
		os.Exit(1)
	}
	if *format != "csv" && *format != "xlsx" {
		logger.Error("invalid format, use csv or xlsx", slog.String("format", *format))
		os.Exit(1)
	}

	ctx := context.Background()

	loader := ingest.NewLoader(logger)
	market, err := loader.LoadFile(ctx, *marketFile)
	if err != nil {
		logger.Error("failed to load market file", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("market loaded",
		slog.String("file", *marketFile),
		slog.Int("records", len(market)))

	subjects := pickSubjects(market, *subjectID)
	if len(subjects) == 0 {
		logger.Error("no subjects to value",
			slog.String("subject_id", *subjectID),
			slog.String("hint", "subjects are active or pending listings"))
		os.Exit(1)
	}

	opts := valuation.Options{
		MinComps:             *minComps,
		UseHedonicModel:      valuation.Bool(!*noModel),
		FallbackToHeuristics: valuation.Bool(true),
	}.Normalize()

	engine := valuation.NewEngine(logger)
	entries := make([]exporter.ReportEntry, 0, len(subjects))
	for _, subject := range subjects {
		result := engine.ValueSubject(ctx, subject, market, opts)
		entries = append(entries, exporter.ReportEntry{
			SubjectID: subject.ID,
			Address:   subject.Address,
			AskPrice:  subject.Price,
			Result:    result,
		})
		logger.Info("subject valued",
			slog.String("subject_id", subject.ID),
			slog.String("status", result.Status),
			slog.String("classification", result.Classification),
			slog.Float64("confidence", result.Confidence))
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			logger.Error("failed to encode results", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	if err := writeReport(*outDir, *format, entries, logger); err != nil {
		logger.Error("failed to write report", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// pickSubjects selects which listings get valued. With an explicit ID
// any status qualifies; otherwise every active or pending listing does.
func pickSubjects(market []records.RawRecord, subjectID string) []records.RawRecord {
	var out []records.RawRecord
	for _, r := range market {
		if subjectID != "" {
			if r.ID == subjectID {
				out = append(out, r)
			}
			continue
		}
		switch strings.ToLower(strings.TrimSpace(r.Status)) {
		case "active", "pending":
			out = append(out, r)
		}
	}
	return out
}

func writeReport(outDir, format string, entries []exporter.ReportEntry, logger *slog.Logger) error {
	switch format {
	case "csv":
		w := exporter.NewCSVWriter(outDir, logger)
		if err := w.WriteReportCSV("valuations.csv", entries); err != nil {
			return err
		}
		fmt.Printf("report written to %s\n", filepath.Join(outDir, "valuations.csv"))
	case "xlsx":
		w := exporter.NewXLSXWriter(logger)
		path := filepath.Join(outDir, "valuations.xlsx")
		if err := w.WriteReport(path, entries); err != nil {
			return err
		}
		fmt.Printf("report written to %s\n", path)
	}
	return nil
}
