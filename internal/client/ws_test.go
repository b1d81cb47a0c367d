package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deckterm/deckterm/internal/protocol"
	"github.com/gorilla/websocket"
)

// fakeBackend answers a handful of test methods:
//
//	echo(x)         -> x
//	fail()          -> error result
//	hang()          -> never answers
//	emit(topic, s)  -> publishes s on topic, then true
//	drop()          -> closes the connection
type fakeBackend struct {
	mu         sync.Mutex
	authHeader string
}

func (f *fakeBackend) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.authHeader = r.Header.Get("Authorization")
		f.mu.Unlock()

		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			var msg protocol.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Method {
			case "echo":
				var x any
				_ = protocol.DecodeArgs(msg.Args, &x)
				res, _ := protocol.NewResult(msg.ID, x)
				conn.WriteJSON(res)
			case "fail":
				conn.WriteJSON(protocol.NewErrorResult(msg.ID, errors.New("no such terminal")))
			case "hang":
			case "emit":
				var topic, payload string
				_ = protocol.DecodeArgs(msg.Args, &topic, &payload)
				conn.WriteJSON(protocol.NewEvent(topic, []byte(payload)))
				res, _ := protocol.NewResult(msg.ID, true)
				conn.WriteJSON(res)
			case "drop":
				return
			}
		}
	}
}

func (f *fakeBackend) auth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authHeader
}

func newTestClient(t *testing.T, token string) (*WSClient, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend.handler(t))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := NewWSClient(url, token, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, backend
}

func TestCallResult(t *testing.T) {
	c, _ := newTestClient(t, "")

	var got string
	if err := c.Call(context.Background(), "echo", &got, "hello"); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "hello" {
		t.Errorf("result = %q, want hello", got)
	}

	var ok bool
	if err := c.Call(context.Background(), "echo", &ok, true); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !ok {
		t.Error("result = false, want true")
	}
}

func TestCallNilResult(t *testing.T) {
	c, _ := newTestClient(t, "")
	if err := c.Call(context.Background(), "echo", nil, 42); err != nil {
		t.Fatalf("Call: %v", err)
	}
}

func TestCallRemoteError(t *testing.T) {
	c, _ := newTestClient(t, "")

	err := c.Call(context.Background(), "fail", nil)
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("err = %v, want *RemoteError", err)
	}
	if remote.Method != "fail" || remote.Message != "no such terminal" {
		t.Errorf("remote = %+v", remote)
	}
}

func TestCallContextTimeout(t *testing.T) {
	c, _ := newTestClient(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Call(ctx, "hang", nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}

	c.mu.Lock()
	pending := len(c.pending)
	c.mu.Unlock()
	if pending != 0 {
		t.Errorf("pending calls = %d after timeout, want 0", pending)
	}
}

func TestCallNotConnected(t *testing.T) {
	c := NewWSClient("ws://127.0.0.1:1/ws", "", nil)
	if err := c.Call(context.Background(), "echo", nil, 1); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done should be closed before Connect")
	}
}

func TestCallFailsOnDisconnect(t *testing.T) {
	c, _ := newTestClient(t, "")

	result := make(chan error, 1)
	go func() { result <- c.Call(context.Background(), "hang", nil) }()

	// Give the hanging call time to register before the drop.
	time.Sleep(20 * time.Millisecond)
	_ = c.Call(context.Background(), "drop", nil)

	select {
	case err := <-result:
		if !errors.Is(err, ErrDisconnected) {
			t.Errorf("err = %v, want ErrDisconnected", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hanging call not released by disconnect")
	}

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after disconnect")
	}
	if c.Connected() {
		t.Error("Connected = true after disconnect")
	}
	if c.Err() == nil {
		t.Error("Err = nil after remote close")
	}
}

func TestSubscribeExactTopic(t *testing.T) {
	c, _ := newTestClient(t, "")

	var mu sync.Mutex
	var mine, sibling []string
	d, err := c.Subscribe(protocol.OutputTopic("a"), func(p []byte) {
		mu.Lock()
		mine = append(mine, string(p))
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := c.Subscribe(protocol.OutputTopic("ab"), func(p []byte) {
		mu.Lock()
		sibling = append(sibling, string(p))
		mu.Unlock()
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ctx := context.Background()
	for _, chunk := range []string{"ab", "cd", "\r\n"} {
		if err := c.Call(ctx, "emit", nil, protocol.OutputTopic("a"), chunk); err != nil {
			t.Fatalf("emit: %v", err)
		}
	}

	// Events are dispatched before the result that follows them.
	mu.Lock()
	got := strings.Join(mine, "")
	siblingCount := len(sibling)
	mu.Unlock()
	if got != "abcd\r\n" {
		t.Errorf("received %q, want %q", got, "abcd\r\n")
	}
	if siblingCount != 0 {
		t.Errorf("sibling topic received %d events", siblingCount)
	}

	d.Dispose()
	d.Dispose()
	if err := c.Call(ctx, "emit", nil, protocol.OutputTopic("a"), "late"); err != nil {
		t.Fatalf("emit: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(mine) != 3 {
		t.Errorf("events after dispose: %q", mine)
	}
}

func TestSubscribeRejectsEmptyTopic(t *testing.T) {
	c := NewWSClient("ws://127.0.0.1:1/ws", "", nil)
	if _, err := c.Subscribe("", func([]byte) {}); err == nil {
		t.Error("expected error for empty topic")
	}
}

func TestBearerToken(t *testing.T) {
	_, backend := newTestClient(t, "s3cret")
	if got := backend.auth(); got != "Bearer s3cret" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestCloseReleasesCalls(t *testing.T) {
	c, _ := newTestClient(t, "")

	result := make(chan error, 1)
	go func() { result <- c.Call(context.Background(), "hang", nil) }()
	time.Sleep(20 * time.Millisecond)

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-result:
		if !errors.Is(err, ErrDisconnected) {
			t.Errorf("err = %v, want ErrDisconnected", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("call not released by Close")
	}
	if c.Err() != nil {
		t.Errorf("Err = %v after Close, want nil", c.Err())
	}
}

func TestConnectWithRetryHonoursContext(t *testing.T) {
	c := NewWSClient("ws://127.0.0.1:1/ws", "", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := c.ConnectWithRetry(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestConnectRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewWSClient("ws"+strings.TrimPrefix(srv.URL, "http"), "wrong", nil)
	err := c.Connect(context.Background())
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("err = %v, want status 401", err)
	}
}

func TestCallArgsOnWire(t *testing.T) {
	msg, err := protocol.NewCall(7, protocol.MethodChangeWindowSize, "sidebar-term-x", 15, 80)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"call","id":7,"method":"change_terminal_window_size","args":["sidebar-term-x",15,80]}`
	if string(data) != want {
		t.Errorf("wire = %s\nwant  %s", data, want)
	}
}
