package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ValuationMetrics holds the application-specific meters.
type ValuationMetrics struct {
	ValuationsTotal   metric.Int64Counter
	ValuationDuration metric.Float64Histogram
	ComparablesUsed   metric.Int64Histogram
	ReconcileFlags    metric.Int64Counter

	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter
}

// NewValuationMetrics creates the service metric instruments.
func NewValuationMetrics(meter metric.Meter) (*ValuationMetrics, error) {
	valuationsTotal, err := meter.Int64Counter(
		"valuations_total",
		metric.WithDescription("Total number of valuation requests processed"),
	)
	if err != nil {
		return nil, err
	}

	valuationDuration, err := meter.Float64Histogram(
		"valuation_duration_seconds",
		metric.WithDescription("Valuation pipeline duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	comparablesUsed, err := meter.Int64Histogram(
		"valuation_comparables_used",
		metric.WithDescription("Number of comparables used per valuation"),
	)
	if err != nil {
		return nil, err
	}

	reconcileFlags, err := meter.Int64Counter(
		"valuation_reconcile_flags_total",
		metric.WithDescription("Valuations flagged for manual review during reconciliation"),
	)
	if err != nil {
		return nil, err
	}

	httpRequestsTotal, err := meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	httpRequestDuration, err := meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	httpActiveRequests, err := meter.Int64UpDownCounter(
		"http_active_requests",
		metric.WithDescription("Number of active HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	return &ValuationMetrics{
		ValuationsTotal:     valuationsTotal,
		ValuationDuration:   valuationDuration,
		ComparablesUsed:     comparablesUsed,
		ReconcileFlags:      reconcileFlags,
		HTTPRequestsTotal:   httpRequestsTotal,
		HTTPRequestDuration: httpRequestDuration,
		HTTPActiveRequests:  httpActiveRequests,
	}, nil
}

// RecordValuation records the outcome of one valuation run. Safe to call
// on a nil receiver so the handlers work without telemetry wired up.
func (m *ValuationMetrics) RecordValuation(ctx context.Context, status, classification string, compCount int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("classification", classification),
	)
	m.ValuationsTotal.Add(ctx, 1, attrs)
	m.ValuationDuration.Record(ctx, elapsed.Seconds(), attrs)
	m.ComparablesUsed.Record(ctx, int64(compCount))
}

// RecordReconcileFlag counts a valuation flagged for manual review.
func (m *ValuationMetrics) RecordReconcileFlag(ctx context.Context) {
	if m == nil {
		return
	}
	m.ReconcileFlags.Add(ctx, 1)
}
