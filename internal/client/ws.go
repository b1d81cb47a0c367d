// Package client connects to a deckterm backend. WSClient carries the
// call/event protocol and satisfies bridge.Transport; HTTPClient reads the
// REST endpoints.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deckterm/deckterm/internal/bridge"
	"github.com/deckterm/deckterm/internal/logging"
	"github.com/deckterm/deckterm/internal/protocol"
	"github.com/gorilla/websocket"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

var (
	// ErrNotConnected is returned by Call when there is no live connection.
	ErrNotConnected = errors.New("not connected")

	// ErrDisconnected is returned by calls still waiting when the connection drops.
	ErrDisconnected = errors.New("connection lost")
)

// RemoteError is a failure reported by the backend in a result envelope.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}

var _ bridge.Transport = (*WSClient)(nil)

type subscription struct {
	key     uint64
	handler func([]byte)
}

// WSClient manages the WebSocket connection to a deckterm backend.
type WSClient struct {
	url    string
	token  string
	logger *log.Logger

	mu         sync.Mutex
	writeMu    sync.Mutex // serialises all conn writes (ping, calls)
	conn       *websocket.Conn
	done       chan struct{}
	err        error
	nextID     uint64
	pending    map[uint64]chan protocol.Message
	subs       map[string][]subscription
	nextSub    uint64
	pingCancel context.CancelFunc
}

// NewWSClient creates a client for the given WebSocket URL. Nothing is dialled
// until Connect.
func NewWSClient(url, token string, logger *log.Logger) *WSClient {
	if logger == nil {
		logger = logging.Discard()
	}
	done := make(chan struct{})
	close(done)
	return &WSClient{
		url:     url,
		token:   token,
		logger:  logger,
		done:    done,
		pending: make(map[uint64]chan protocol.Message),
		subs:    make(map[string][]subscription),
	}
}

// Connect dials the backend once. The token, if any, is sent as a bearer
// header on the upgrade request.
func (c *WSClient) Connect(ctx context.Context) error {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", c.url, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		conn.Close()
		return errors.New("already connected")
	}
	pingCtx, pingCancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.conn = conn
	c.done = done
	c.err = nil
	c.pingCancel = pingCancel
	c.mu.Unlock()

	go c.pingLoop(pingCtx, conn)
	go c.readLoop(conn, done)

	c.logger.Info("connected", "url", c.url)
	return nil
}

// ConnectWithRetry dials until it succeeds or ctx ends, backing off
// exponentially between attempts.
func (c *WSClient) ConnectWithRetry(ctx context.Context) error {
	delay := reconnectBaseDelay
	for {
		err := c.Connect(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("dial failed", "err", err, "retry", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, reconnectMaxDelay)
	}
}

// Connected reports whether a connection is live.
func (c *WSClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Done is closed when the current connection ends. Before the first Connect
// it is already closed.
func (c *WSClient) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Err returns the error that ended the last connection, or nil after Close.
func (c *WSClient) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close sends a close frame and drops the connection. Waiting calls fail
// with ErrDisconnected.
func (c *WSClient) Close() error {
	c.mu.Lock()
	conn, done := c.conn, c.done
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.teardown(conn, done, nil)
	return nil
}

// Call sends a call envelope and waits for its result.
func (c *WSClient) Call(ctx context.Context, method string, result any, args ...any) error {
	c.mu.Lock()
	conn, done := c.conn, c.done
	if conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.nextID++
	id := c.nextID
	reply := make(chan protocol.Message, 1)
	c.pending[id] = reply
	c.mu.Unlock()

	msg, err := protocol.NewCall(id, method, args...)
	if err != nil {
		c.forget(id)
		return err
	}
	if err := c.write(conn, msg); err != nil {
		c.forget(id)
		return fmt.Errorf("%s: %w", method, err)
	}

	select {
	case res := <-reply:
		if res.Error != "" {
			return &RemoteError{Method: method, Message: res.Error}
		}
		if result != nil && len(res.Result) > 0 {
			if err := json.Unmarshal(res.Result, result); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case <-done:
		return fmt.Errorf("%s: %w", method, ErrDisconnected)
	}
}

// Subscribe registers handler for events on topic. Handlers run on the read
// goroutine, one event at a time, in arrival order. Subscriptions are local
// and survive reconnects.
func (c *WSClient) Subscribe(topic string, handler func([]byte)) (bridge.Disposable, error) {
	if topic == "" {
		return nil, errors.New("subscribe: empty topic")
	}
	if handler == nil {
		return nil, errors.New("subscribe: nil handler")
	}

	c.mu.Lock()
	c.nextSub++
	key := c.nextSub
	c.subs[topic] = append(c.subs[topic], subscription{key: key, handler: handler})
	c.mu.Unlock()

	return bridge.DisposeFunc(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.subs[topic] = slices.DeleteFunc(c.subs[topic], func(s subscription) bool {
			return s.key == key
		})
		if len(c.subs[topic]) == 0 {
			delete(c.subs, topic)
		}
	}), nil
}

func (c *WSClient) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *WSClient) write(conn *websocket.Conn, msg protocol.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}

func (c *WSClient) readLoop(conn *websocket.Conn, done chan struct{}) {
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	conn.SetReadDeadline(time.Now().Add(pongTimeout))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.teardown(conn, done, err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongTimeout))

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("bad frame", "err", err)
			continue
		}
		c.dispatch(msg)
	}
}

func (c *WSClient) dispatch(msg protocol.Message) {
	switch msg.Type {
	case protocol.MsgResult:
		c.mu.Lock()
		reply, ok := c.pending[msg.ID]
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("result for unknown call", "id", msg.ID)
			return
		}
		reply <- msg
	case protocol.MsgEvent:
		c.mu.Lock()
		subs := slices.Clone(c.subs[msg.Topic])
		c.mu.Unlock()
		for _, s := range subs {
			s.handler(msg.Payload)
		}
	default:
		c.logger.Debug("ignoring frame", "type", msg.Type)
	}
}

// teardown retires conn if it is still current. Later calls for the same
// conn are no-ops.
func (c *WSClient) teardown(conn *websocket.Conn, done chan struct{}, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.err = cause
	c.pending = make(map[uint64]chan protocol.Message)
	if c.pingCancel != nil {
		c.pingCancel()
		c.pingCancel = nil
	}
	close(done)
	c.mu.Unlock()

	conn.Close()
	if cause != nil {
		c.logger.Warn("disconnected", "err", cause)
	} else {
		c.logger.Info("connection closed")
	}
}

// pingLoop sends periodic pings on the given connection. It exits when the
// context is cancelled or the connection changes.
func (c *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			cc := c.conn
			c.mu.Unlock()
			if cc != conn {
				return
			}
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
