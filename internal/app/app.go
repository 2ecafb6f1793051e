package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"comppulse/internal/config"
	custommw "comppulse/internal/middleware"
	"comppulse/internal/observability"
	"comppulse/internal/progress"
	transport "comppulse/internal/transport/http"
	"comppulse/internal/valuation"
)

const AppName = "comppulse"

// Application holds the assembled service.
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	Telemetry *observability.Providers
	Engine    *valuation.Engine
	Hub       *progress.Hub
	Router    chi.Router
	Server    *http.Server
}

// NewApplication loads configuration and wires every component.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("application starting",
		slog.String("name", AppName),
		slog.String("version", transport.Version))

	telemetry, err := observability.Init(context.Background(), cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}

	app := &Application{
		Config:    cfg,
		Logger:    logger,
		Telemetry: telemetry,
		Engine:    valuation.NewEngine(logger),
		Hub:       progress.NewHub(logger),
	}

	app.setupRouter()
	app.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      app.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return app, nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(custommw.RequestID)
	r.Use(custommw.RealIP)

	otelMW := custommw.NewOTelMiddleware(a.Telemetry, a.Logger)
	r.Use(otelMW.Handler)

	r.Use(custommw.StructuredLogger(a.Logger))
	r.Use(custommw.Recoverer(a.Logger))
	r.Use(custommw.SecurityHeaders)

	if a.Config.RateLimit.Enabled {
		limiter := custommw.NewRateLimiter(a.Config.RateLimit.RPS, a.Config.RateLimit.Burst, a.Logger)
		r.Use(limiter.Handler)
	}

	valuationHandler := transport.NewValuationHandler(
		a.Engine,
		a.Logger,
		a.Telemetry.Metrics,
		a.Hub,
		a.Config.Engine.BatchConcurrency,
	)
	valuationHandler.SetDefaultOptions(valuation.Options{
		MinComps:             a.Config.Engine.MinComps,
		UseHedonicModel:      valuation.Bool(a.Config.Engine.UseHedonicModel),
		FallbackToHeuristics: valuation.Bool(a.Config.Engine.FallbackToHeuristics),
		MaxAdjustmentPct:     a.Config.Engine.MaxAdjustmentPct,
	})
	healthHandler := transport.NewHealthHandler(a.Logger)
	wsHandler := transport.NewWSHandler(a.Hub, a.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(custommw.Timeout(a.Config.Server.WriteTimeout, a.Logger))
		valuationHandler.RegisterRoutes(r)
	})

	healthHandler.RegisterRoutes(r)

	if a.Telemetry.PrometheusHTTP != nil {
		r.Method(http.MethodGet, "/metrics", a.Telemetry.PrometheusHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(custommw.WebSocketTraceMiddleware(a.Logger))
		wsHandler.RegisterRoutes(r)
	})

	a.Router = r
}

// Start launches the hub and the HTTP listener.
func (a *Application) Start(ctx context.Context, errCh chan<- error) {
	a.Hub.Start()

	a.Logger.InfoContext(ctx, "http server listening",
		slog.String("addr", a.Server.Addr))

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
}

// Stop shuts the server, hub, and telemetry down gracefully.
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	a.Logger.InfoContext(shutdownCtx, "shutting down")

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(shutdownCtx, "server shutdown failed",
			slog.String("error", err.Error()))
	}

	a.Hub.Stop()

	if err := a.Telemetry.Shutdown(shutdownCtx); err != nil {
		a.Logger.WarnContext(shutdownCtx, "telemetry shutdown failed",
			slog.String("error", err.Error()))
	}

	a.Logger.Info("shutdown complete")
	return nil
}

// Run starts the application and blocks until interrupted.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	a.Start(ctx, errCh)

	select {
	case sig := <-sigChan:
		a.Logger.InfoContext(ctx, "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
		stopErr := a.Stop(ctx)
		if stopErr != nil {
			return stopErr
		}
		return err
	}

	return a.Stop(ctx)
}

// WaitUntilReady polls the health endpoint, for tests and supervisors.
func (a *Application) WaitUntilReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	url := fmt.Sprintf("http://127.0.0.1:%d/healthz", a.Config.Server.Port)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("server not ready after %s", timeout)
}
