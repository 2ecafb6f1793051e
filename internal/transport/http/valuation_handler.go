package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	apierrors "comppulse/internal/errors"
	"comppulse/internal/observability"
	"comppulse/internal/progress"
	"comppulse/internal/records"
	"comppulse/internal/valuation"
)

// ValuationRequest is the single-subject valuation request body.
type ValuationRequest struct {
	Subject records.RawRecord   `json:"subject" validate:"required"`
	Market  []records.RawRecord `json:"market" validate:"required,min=1,max=10000"`
	Options *valuation.Options  `json:"options,omitempty"`
}

// BatchRequest values many subjects against one shared market snapshot.
type BatchRequest struct {
	Subjects []records.RawRecord `json:"subjects" validate:"required,min=1,max=500"`
	Market   []records.RawRecord `json:"market" validate:"required,min=1,max=10000"`
	Options  *valuation.Options  `json:"options,omitempty"`
}

// ValuationResponse wraps one valuation result.
type ValuationResponse struct {
	Success bool                  `json:"success"`
	Result  valuation.ValueResult `json:"result"`
}

// BatchItem is one subject's outcome within a batch response.
type BatchItem struct {
	SubjectID string                `json:"subject_id"`
	Result    valuation.ValueResult `json:"result"`
}

// BatchResponse reports a completed batch run.
type BatchResponse struct {
	Success bool        `json:"success"`
	BatchID string      `json:"batch_id"`
	Items   []BatchItem `json:"items"`
	Elapsed string      `json:"elapsed"`
}

// ValuationHandler handles valuation HTTP requests.
type ValuationHandler struct {
	engine       *valuation.Engine
	validator    *validator.Validate
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
	metrics      *observability.ValuationMetrics
	hub          *progress.Hub
	concurrency  int
	defaults     valuation.Options
}

// NewValuationHandler creates a valuation handler. hub and metrics may
// be nil; batch progress streaming and instrument recording are then
// skipped.
func NewValuationHandler(engine *valuation.Engine, logger *slog.Logger, metrics *observability.ValuationMetrics, hub *progress.Hub, concurrency int) *ValuationHandler {
	v := validator.New()
	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if concurrency <= 0 {
		concurrency = 4
	}

	return &ValuationHandler{
		engine:       engine,
		validator:    v,
		logger:       logger.With(slog.String("handler", "valuation")),
		errorHandler: apierrors.NewErrorHandler(logger, false),
		metrics:      metrics,
		hub:          hub,
		concurrency:  concurrency,
		defaults:     valuation.DefaultOptions(),
	}
}

// SetDefaultOptions replaces the engine options applied to requests
// that do not carry their own.
func (h *ValuationHandler) SetDefaultOptions(opts valuation.Options) {
	h.defaults = opts.Normalize()
}

// RegisterRoutes registers the valuation routes
func (h *ValuationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/valuations", func(r chi.Router) {
		r.Post("/", h.Value)
		r.Post("/batch", h.ValueBatch)
	})
}

// Value handles POST /api/v1/valuations
func (h *ValuationHandler) Value(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ValuationRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validateRequest(&req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	opts := h.resolveOptions(req.Options)

	h.logger.InfoContext(ctx, "valuation requested",
		slog.String("subject_id", req.Subject.ID),
		slog.Int("market_records", len(req.Market)))

	start := time.Now()
	result := h.engine.ValueSubject(ctx, req.Subject, req.Market, opts)
	h.recordResult(ctx, result, time.Since(start))

	render.JSON(w, r, ValuationResponse{Success: true, Result: result})
}

// ValueBatch handles POST /api/v1/valuations/batch
func (h *ValuationHandler) ValueBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BatchRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validateRequest(&req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	opts := h.resolveOptions(req.Options)
	batchID := uuid.New().String()
	total := len(req.Subjects)

	h.logger.InfoContext(ctx, "batch valuation started",
		slog.String("batch_id", batchID),
		slog.Int("subjects", total),
		slog.Int("market_records", len(req.Market)))

	if h.hub != nil {
		h.hub.BatchStarted(batchID, total)
	}

	start := time.Now()
	items := make([]BatchItem, total)
	var mu sync.Mutex
	completed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.concurrency)
	for i := range req.Subjects {
		g.Go(func() error {
			subject := req.Subjects[i]
			itemStart := time.Now()
			result := h.engine.ValueSubject(gctx, subject, req.Market, opts)
			h.recordResult(gctx, result, time.Since(itemStart))

			items[i] = BatchItem{SubjectID: subject.ID, Result: result}

			mu.Lock()
			completed++
			done := completed
			mu.Unlock()

			if h.hub != nil {
				h.hub.BatchItemCompleted(progress.BatchItemUpdate{
					BatchID:        batchID,
					SubjectID:      subject.ID,
					Completed:      done,
					Total:          total,
					Status:         result.Status,
					Classification: result.Classification,
					EstimatedValue: (result.SuggestedRange.Low + result.SuggestedRange.High) / 2,
				})
			}
			return nil
		})
	}

	// Workers never return errors; each subject yields a result even on
	// failure
	if err := g.Wait(); err != nil {
		h.errorHandler.HandleError(w, r, fmt.Errorf("batch execution: %w", err))
		return
	}

	elapsed := time.Since(start)
	failed := 0
	for _, item := range items {
		if item.Result.Status == valuation.StatusError {
			failed++
		}
	}

	if h.hub != nil {
		h.hub.BatchCompleted(batchID, total-failed, failed, elapsed)
	}

	h.logger.InfoContext(ctx, "batch valuation complete",
		slog.String("batch_id", batchID),
		slog.Int("subjects", total),
		slog.Int("failed", failed),
		slog.Duration("elapsed", elapsed))

	render.JSON(w, r, BatchResponse{
		Success: true,
		BatchID: batchID,
		Items:   items,
		Elapsed: elapsed.String(),
	})
}

func (h *ValuationHandler) resolveOptions(opts *valuation.Options) valuation.Options {
	if opts == nil {
		return h.defaults
	}
	return opts.Normalize()
}

func (h *ValuationHandler) validateRequest(req interface{}) error {
	err := h.validator.Struct(req)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return apierrors.InvalidRequestWithError(err)
	}

	fields := make([]apierrors.ValidationError, 0, len(validationErrors))
	for _, ve := range validationErrors {
		fields = append(fields, apierrors.ValidationError{
			Field:   ve.Field(),
			Message: fmt.Sprintf("failed %q validation", ve.Tag()),
		})
	}
	return apierrors.NewValidationErrors(fields)
}

func (h *ValuationHandler) recordResult(ctx context.Context, result valuation.ValueResult, elapsed time.Duration) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordValuation(ctx, result.Status, result.Classification, result.ModelStats.CompCount, elapsed)
	if result.Explain.Reconciliation.Flagged {
		h.metrics.RecordReconcileFlag(ctx)
	}
}
