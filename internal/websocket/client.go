package websocket

import (
	"bytes"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"axiscli/internal/infrastructure"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

var heartbeat = []byte(`{"type":"heartbeat"}`)

// Connection is the part of a websocket connection the pumps use
type Connection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)
	RemoteAddr() net.Addr
}

// Client is a middleman between the websocket connection and the hub
type Client struct {
	hub  *Hub
	conn Connection

	// Buffered channel of outbound messages, closed by the hub
	send chan []byte

	id          string
	traceID     string
	remoteAddr  string
	connectedAt time.Time
	logger      *slog.Logger
}

// NewClient creates a client for conn
func NewClient(hub *Hub, conn Connection, traceID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	id := uuid.New().String()
	remote := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}

	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, clientSendBufferSize),
		id:          id,
		traceID:     traceID,
		remoteAddr:  remote,
		connectedAt: time.Now(),
		logger: logger.With(
			slog.String("component", "websocket.client"),
			slog.String("client_id", id),
		),
	}
}

// ReadPump drains the connection so control frames are processed. Clients
// only ever send heartbeats.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("unexpected websocket close", slog.String("error", err.Error()))
			}
			return
		}
		if bytes.Equal(bytes.TrimSpace(message), heartbeat) {
			c.conn.SetReadDeadline(time.Now().Add(pongWait))
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("error writing message", slog.String("error", err.Error()))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", slog.String("error", err.Error()))
				return
			}
		}
	}
}
