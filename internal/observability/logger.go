// Package observability wires structured logging, OpenTelemetry tracing,
// and Prometheus-exported metrics for the valuation service. The core
// engine stays telemetry-free; everything here lives at the service
// boundary.
package observability

import (
	"log/slog"
	"os"
	"strings"

	"comppulse/internal/config"
)

// NewLogger builds the service logger from config: JSON output for
// deployments, text for local development.
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
