package server

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deckterm/deckterm/internal/protocol"
	"github.com/deckterm/deckterm/internal/ptyhost"
	"github.com/gorilla/websocket"
)

// ErrTooManyConnections is returned by Add when the connection limit is reached.
var ErrTooManyConnections = errors.New("too many connections")

const (
	sendBuffer   = 256
	writeTimeout = 10 * time.Second
)

// conn is one WebSocket client. It is the ptyhost.Subscriber for every
// terminal that client subscribes to.
type conn struct {
	ws     *websocket.Conn
	hub    *Hub
	send   chan []byte
	done   chan struct{}
	logger *log.Logger
}

var _ ptyhost.Subscriber = (*conn)(nil)

// Publish queues an output event. A client that cannot keep up is
// disconnected.
func (c *conn) Publish(topic string, payload []byte) {
	data, err := json.Marshal(protocol.NewEvent(topic, payload))
	if err != nil {
		c.logger.Error("marshal event", "err", err)
		return
	}
	c.enqueue(data)
}

func (c *conn) reply(msg protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("marshal result", "err", err)
		return
	}
	c.enqueue(data)
}

func (c *conn) enqueue(data []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("client too slow, disconnecting")
		go c.hub.Remove(c)
	}
}

func (c *conn) writePump() {
	defer c.ws.Close()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("write failed", "err", err)
				c.hub.Remove(c)
				return
			}
		}
	}
}

// Hub tracks live connections and detaches them from the terminal host when
// they go away.
type Hub struct {
	host           *ptyhost.Host
	maxConnections int
	logger         *log.Logger

	mu    sync.RWMutex
	conns map[*conn]bool
}

// NewHub creates a hub. maxConnections <= 0 means unlimited.
func NewHub(host *ptyhost.Host, maxConnections int, logger *log.Logger) *Hub {
	return &Hub{
		host:           host,
		maxConnections: maxConnections,
		logger:         logger,
		conns:          make(map[*conn]bool),
	}
}

// Add registers ws and starts its write pump.
func (h *Hub) Add(ws *websocket.Conn) (*conn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.maxConnections > 0 && len(h.conns) >= h.maxConnections {
		return nil, ErrTooManyConnections
	}

	c := &conn{
		ws:     ws,
		hub:    h,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: h.logger.With("remote", ws.RemoteAddr().String()),
	}
	h.conns[c] = true
	go c.writePump()
	return c, nil
}

// Remove unregisters c, stops its write pump and detaches it from every
// terminal. It is safe to call more than once.
func (h *Hub) Remove(c *conn) {
	h.mu.Lock()
	if _, ok := h.conns[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c)
	close(c.done)
	h.mu.Unlock()

	h.host.Detach(c)
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// CloseAll drops every connection.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		h.Remove(c)
	}
}
