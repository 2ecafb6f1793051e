// Package progress streams batch valuation progress to WebSocket
// subscribers. Handlers publish typed events through the Hub and every
// connected client receives them as JSON frames.
package progress

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"comppulse/internal/observability"
)

// Message type constants
const (
	TypeConnection     = "connection"
	TypeBatchStarted   = "batch:started"
	TypeBatchItem      = "batch:item"
	TypeBatchComplete  = "batch:complete"
	TypeValuationError = "valuation:error"
)

// Event is the envelope broadcast to all subscribers.
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// BatchItemUpdate describes the completion of one subject in a batch.
type BatchItemUpdate struct {
	BatchID        string  `json:"batch_id"`
	SubjectID      string  `json:"subject_id"`
	Completed      int     `json:"completed"`
	Total          int     `json:"total"`
	Status         string  `json:"status"`
	Classification string  `json:"classification,omitempty"`
	EstimatedValue float64 `json:"estimated_value,omitempty"`
}

// Hub maintains the set of active clients and broadcasts events to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	logger *slog.Logger

	totalConnections int64
	messagesSent     int64

	quit    chan struct{}
	running bool
}

// NewHub creates a new Hub instance
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "progress.hub"))

	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     logger,
		quit:       make(chan struct{}),
	}
}

// Start starts the hub's main loop
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.run()
}

// Stop shuts the hub down and disconnects all clients
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)
}

func (h *Hub) run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.totalConnections++
			h.mu.Unlock()

			ctx := clientContext(client)
			h.logger.InfoContext(ctx, "client registered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))

			h.sendConnectionAck(ctx, client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				count := len(h.clients)
				h.mu.Unlock()

				h.logger.InfoContext(clientContext(client), "client unregistered",
					slog.Int("total_clients", count),
					slog.String("client_id", client.id),
					slog.Duration("connection_duration", time.Since(client.connectedAt)))
			} else {
				h.mu.Unlock()
			}

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

func (h *Hub) sendConnectionAck(ctx context.Context, client *Client) {
	ack := Event{
		Type: TypeConnection,
		Data: map[string]interface{}{
			"status":    "connected",
			"client_id": client.id,
		},
		Timestamp: time.Now().Format(time.RFC3339),
		TraceID:   client.traceID,
	}

	jsonData, err := json.Marshal(ack)
	if err != nil {
		return
	}
	select {
	case client.send <- jsonData:
	default:
		h.logger.WarnContext(ctx, "connection ack dropped, client buffer full",
			slog.String("client_id", client.id))
	}
}

func (h *Hub) deliver(message []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	failCount := 0
	for _, client := range clients {
		select {
		case client.send <- message:
			h.messagesSent++
		default:
			failCount++
			// Client's send channel is full, drop it
			h.mu.Lock()
			close(client.send)
			delete(h.clients, client)
			h.mu.Unlock()

			h.logger.WarnContext(clientContext(client), "client send buffer full, disconnecting",
				slog.String("client_id", client.id))
		}
	}

	if failCount > 0 {
		h.logger.Warn("some clients failed to receive broadcast",
			slog.Int("client_count", len(clients)),
			slog.Int("fail_count", failCount))
	}
}

// Broadcast marshals and queues an event for all connected clients.
func (h *Hub) Broadcast(eventType string, data interface{}) {
	event := Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().Format(time.RFC3339),
	}

	jsonData, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshal broadcast event",
			slog.String("type", eventType),
			slog.String("error", err.Error()))
		return
	}

	select {
	case h.broadcast <- jsonData:
	default:
		h.logger.Warn("broadcast buffer full, dropping event",
			slog.String("type", eventType))
	}
}

// BatchStarted announces a new batch run.
func (h *Hub) BatchStarted(batchID string, total int) {
	h.Broadcast(TypeBatchStarted, map[string]interface{}{
		"batch_id": batchID,
		"total":    total,
	})
}

// BatchItemCompleted announces completion of one subject within a batch.
func (h *Hub) BatchItemCompleted(update BatchItemUpdate) {
	h.Broadcast(TypeBatchItem, update)
}

// BatchCompleted announces the end of a batch run.
func (h *Hub) BatchCompleted(batchID string, completed, failed int, elapsed time.Duration) {
	h.Broadcast(TypeBatchComplete, map[string]interface{}{
		"batch_id":  batchID,
		"completed": completed,
		"failed":    failed,
		"elapsed":   elapsed.String(),
	})
}

// Register queues a client for registration with the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister queues a client for removal from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func clientContext(client *Client) context.Context {
	ctx := context.Background()
	if client.traceID != "" {
		ctx = observability.WithTraceID(ctx, client.traceID)
	}
	return ctx
}
