package http

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 << 10
	sendBuffer     = 64
)

// Hub maps transport sessions to their websocket connections and implements
// app.Deliverer.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*conn
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{conns: make(map[string]*conn), logger: logger}
}

// conn is one websocket with its outbound queue. Only writePump writes to ws.
type conn struct {
	sessionID string
	ws        *websocket.Conn
	send      chan []byte

	mu     sync.Mutex
	closed bool
}

func newConn(sessionID string, ws *websocket.Conn) *conn {
	return &conn{sessionID: sessionID, ws: ws, send: make(chan []byte, sendBuffer)}
}

// Deliver enqueues data for a session without blocking.
func (h *Hub) Deliver(sessionID string, data []byte) bool {
	h.mu.RLock()
	c, ok := h.conns[sessionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	queued, dropped := c.offer(data)
	if dropped {
		h.logger.Warn("slow consumer, dropped oldest message", zap.String("session", sessionID))
	}
	return queued
}

// Len reports the number of connected sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.conns[c.sessionID]; ok {
		old.closeSend()
		_ = old.ws.Close()
	}
	h.conns[c.sessionID] = c
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.conns[c.sessionID]; ok && current == c {
		delete(h.conns, c.sessionID)
	}
	c.closeSend()
}

// Close disconnects every session.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.conns {
		c.closeSend()
		_ = c.ws.Close()
		delete(h.conns, id)
	}
}

// offer enqueues data without blocking. When the queue is full the oldest
// message is dropped to make room. It reports false once the conn is closed.
func (c *conn) offer(data []byte) (queued, dropped bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, false
	}
	select {
	case c.send <- data:
		return true, false
	default:
	}
	select {
	case <-c.send:
		dropped = true
	default:
	}
	select {
	case c.send <- data:
		queued = true
	default:
	}
	return queued, dropped
}

// closeSend stops the writer after it flushes what is queued. Idempotent.
func (c *conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump drains the send queue and pings the peer until the queue is
// closed or a write fails.
func (c *conn) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("ws write error", zap.String("session", c.sessionID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// prepareRead applies the read limit and keeps the read deadline moving on pongs.
func (c *conn) prepareRead() {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
}
