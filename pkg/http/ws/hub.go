package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 45 * time.Second
	sendQueue    = 64
)

// Hub fans session events out to the WebSocket connections watching them.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[uuid.UUID]*Connection
	logger   zerolog.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]map[uuid.UUID]*Connection),
		logger:   logger.With().Str("component", "ws").Logger(),
	}
}

// Subscribe registers conn for events of sessionID.
func (h *Hub) Subscribe(sessionID string, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.sessions[sessionID]
	if !ok {
		conns = make(map[uuid.UUID]*Connection)
		h.sessions[sessionID] = conns
	}
	conns[conn.ID()] = conn
	h.logger.Debug().Str("session_id", sessionID).Str("conn_id", conn.ID().String()).Msg("connection subscribed")
}

// Unsubscribe removes and closes conn.
func (h *Hub) Unsubscribe(sessionID string, conn *Connection) {
	h.mu.Lock()
	if conns, ok := h.sessions[sessionID]; ok {
		delete(conns, conn.ID())
		if len(conns) == 0 {
			delete(h.sessions, sessionID)
		}
	}
	h.mu.Unlock()
	conn.Close()
}

// CloseSession disconnects every watcher of sessionID.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	conns := h.sessions[sessionID]
	delete(h.sessions, sessionID)
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// Subscribers returns the number of connections watching sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Publish sends an event to every watcher of sessionID. Slow or closed
// connections are skipped.
func (h *Hub) Publish(sessionID, kind string, payload any) {
	msg, err := NewMessage(kind, sessionID, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("type", kind).Msg("encode event")
		return
	}

	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.sessions[sessionID]))
	for _, c := range h.sessions[sessionID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.Send(msg); err != nil {
			h.logger.Warn().Err(err).Str("session_id", sessionID).Str("conn_id", c.ID().String()).Msg("event dropped")
		}
	}
}

// Connection represents a WebSocket connection with send queue.
type Connection struct {
	id     uuid.UUID
	conn   *websocket.Conn
	sendCh chan Message
	mu     sync.Mutex
	closed bool
	logger zerolog.Logger
}

// NewConnection wraps a WebSocket connection.
func NewConnection(conn *websocket.Conn, logger zerolog.Logger) *Connection {
	id := uuid.New()
	return &Connection{
		id:     id,
		conn:   conn,
		sendCh: make(chan Message, sendQueue),
		logger: logger.With().Str("conn_id", id.String()).Logger(),
	}
}

func (c *Connection) ID() uuid.UUID {
	return c.id
}

// Send queues a message for delivery.
func (c *Connection) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.sendCh <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close shuts down the connection.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.sendCh)
}

// WritePump sends messages from the send queue and keeps the peer alive with pings.
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Warn().Err(err).Msg("write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump receives messages and calls the handler until the peer goes away.
func (c *Connection) ReadPump(handler func(Message) error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))

		if err := handler(msg); err != nil {
			c.logger.Warn().Err(err).Msg("message handler error")
		}
	}
}

var (
	ErrConnectionClosed = &Error{Code: "connection_closed", Message: "Connection is closed"}
	ErrSendQueueFull    = &Error{Code: "send_queue_full", Message: "Send queue is full"}
)

type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
