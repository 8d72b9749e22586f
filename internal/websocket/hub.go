// Package websocket implements the license status feed of the client session
// host. Every validation pass is pushed to connected clients, and a newly
// connected client immediately receives the latest status.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"axiscli/internal/infrastructure"
	"axiscli/pkg/contracts/domain"
)

// Message types
const (
	TypeConnection        = "connection"
	TypeLicenseStatus     = "license:status"
	TypeSessionTerminated = "session:terminated"
)

const (
	broadcastBufferSize  = 64
	clientSendBufferSize = 16
)

// Message is the envelope of every frame sent to clients
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	clients map[*Client]struct{}

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	// done is closed when Run returns
	done chan struct{}

	mu         sync.RWMutex
	lastStatus []byte

	logger  *slog.Logger
	metrics *HubMetrics
}

// NewHub creates a new Hub. It does nothing until Run is called.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "websocket.hub")),
	}
}

// SetMetrics enables OpenTelemetry metrics
func (h *Hub) SetMetrics(metrics *HubMetrics) {
	h.metrics = metrics
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	h.logger.InfoContext(ctx, "hub started")
	for {
		select {
		case <-ctx.Done():
			h.flush(ctx)
			for client := range h.clients {
				h.drop(ctx, client)
			}
			h.logger.InfoContext(ctx, "hub stopped")
			return nil

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.metrics.clientConnected(ctx)
			h.logger.InfoContext(ctx, "client registered",
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr),
				slog.Int("total_clients", len(h.clients)))

			h.sendTo(ctx, client, h.connectionMessage(client))
			h.mu.RLock()
			last := h.lastStatus
			h.mu.RUnlock()
			if last != nil {
				h.sendTo(ctx, client, last)
			}

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(ctx, client)
				h.logger.InfoContext(ctx, "client unregistered",
					slog.String("client_id", client.id),
					slog.Duration("connection_duration", time.Since(client.connectedAt)),
					slog.Int("total_clients", len(h.clients)))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				h.sendTo(ctx, client, message)
			}
		}
	}
}

// flush delivers broadcasts queued before shutdown, so a termination notice
// reaches clients ahead of the close frame.
func (h *Hub) flush(ctx context.Context) {
	for {
		select {
		case message := <-h.broadcast:
			for client := range h.clients {
				h.sendTo(ctx, client, message)
			}
		default:
			return
		}
	}
}

// sendTo queues message for client, disconnecting clients whose buffer is
// full. Called only from Run.
func (h *Hub) sendTo(ctx context.Context, client *Client, message []byte) {
	select {
	case client.send <- message:
		h.metrics.messageSent(ctx)
	default:
		h.logger.WarnContext(ctx, "client send buffer full, disconnecting",
			slog.String("client_id", client.id))
		h.metrics.messageDropped(ctx)
		h.drop(ctx, client)
	}
}

func (h *Hub) drop(ctx context.Context, client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.metrics.clientDisconnected(ctx)
}

func (h *Hub) connectionMessage(client *Client) []byte {
	data, _ := json.Marshal(Message{
		Type: TypeConnection,
		Data: map[string]string{
			"status":    "connected",
			"client_id": client.id,
		},
		Timestamp: time.Now().UTC(),
		TraceID:   client.traceID,
	})
	return data
}

// Register adds client to the hub. If the hub has stopped the client is
// closed instead.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// Unregister removes client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastStatus pushes a validation outcome to every client and keeps it
// for clients that connect later.
func (h *Hub) BroadcastStatus(ctx context.Context, status domain.ValidationResult) {
	data, ok := h.encode(ctx, TypeLicenseStatus, status)
	if !ok {
		return
	}
	h.mu.Lock()
	h.lastStatus = data
	h.mu.Unlock()
	h.enqueue(ctx, data)
}

// BroadcastTermination tells clients the session ended because the license
// is no longer valid.
func (h *Hub) BroadcastTermination(ctx context.Context, status domain.ValidationResult) {
	if data, ok := h.encode(ctx, TypeSessionTerminated, status); ok {
		h.enqueue(ctx, data)
	}
}

func (h *Hub) encode(ctx context.Context, messageType string, data interface{}) ([]byte, bool) {
	encoded, err := json.Marshal(Message{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now().UTC(),
		TraceID:   infrastructure.GetTraceID(ctx),
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "error marshaling message",
			slog.String("error", err.Error()),
			slog.String("message_type", messageType))
		return nil, false
	}
	return encoded, true
}

// enqueue never blocks the caller; the validator publishes from its own
// goroutine.
func (h *Hub) enqueue(ctx context.Context, data []byte) {
	select {
	case h.broadcast <- data:
	case <-h.done:
	default:
		h.logger.WarnContext(ctx, "broadcast queue full, message dropped")
		h.metrics.messageDropped(ctx)
	}
}
