package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"comppulse/internal/observability"
	"comppulse/internal/progress"
)

// WSHandler upgrades connections and attaches them to the progress hub.
type WSHandler struct {
	hub      *progress.Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a WebSocket handler bound to a hub.
func NewWSHandler(hub *progress.Hub, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		hub:    hub,
		logger: logger.With(slog.String("handler", "ws")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Progress stream carries no sensitive data; cross-origin
			// dashboards are expected
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// RegisterRoutes registers the websocket route
func (h *WSHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/progress", h.Serve)
}

// Serve handles GET /ws/progress
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.ErrorContext(ctx, "websocket upgrade failed",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr))
		// Upgrade writes its own response on failure
		return
	}

	traceID := observability.GetTraceID(ctx)
	h.logger.InfoContext(ctx, "websocket client connected",
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("trace_id", traceID))

	progress.ServeWS(h.hub, conn, traceID, h.logger)
}
