package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordedCall struct {
	method string
	args   []any
}

// fakeTransport records calls and subscription events in one ordered log so
// tests can assert on interleaving.
type fakeTransport struct {
	mu           sync.Mutex
	events       []string
	calls        []recordedCall
	handlers     map[string]map[int]func([]byte)
	nextHandler  int
	results      map[string]any
	errs         map[string]error
	gates        map[string]chan struct{}
	subscribeErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handlers: make(map[string]map[int]func([]byte)),
		results: map[string]any{
			"create_terminal":      true,
			"subscribe_terminal":   true,
			"send_terminal_buffer": true,
		},
		errs:  make(map[string]error),
		gates: make(map[string]chan struct{}),
	}
}

func (f *fakeTransport) record(event string) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
}

func (f *fakeTransport) setResult(method string, result any) {
	f.mu.Lock()
	f.results[method] = result
	f.mu.Unlock()
}

func (f *fakeTransport) setErr(method string, err error) {
	f.mu.Lock()
	f.errs[method] = err
	f.mu.Unlock()
}

// gate makes calls to method block until the returned channel is closed.
func (f *fakeTransport) gate(method string) chan struct{} {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[method] = ch
	f.mu.Unlock()
	return ch
}

func (f *fakeTransport) Call(ctx context.Context, method string, result any, args ...any) error {
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{method: method, args: args})
	f.events = append(f.events, "call:"+method)
	gate := f.gates[method]
	err := f.errs[method]
	value, hasValue := f.results[method]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	if result != nil && hasValue {
		data, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, result)
	}
	return nil
}

func (f *fakeTransport) Subscribe(topic string, handler func([]byte)) (Disposable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	f.events = append(f.events, "subscribe:"+topic)
	f.nextHandler++
	key := f.nextHandler
	if f.handlers[topic] == nil {
		f.handlers[topic] = make(map[int]func([]byte))
	}
	f.handlers[topic][key] = handler
	return DisposeFunc(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers[topic], key)
		f.events = append(f.events, "dispose:"+topic)
	}), nil
}

// publish delivers payload to every handler registered for exactly topic.
func (f *fakeTransport) publish(topic string, payload string) {
	f.mu.Lock()
	keys := make([]int, 0, len(f.handlers[topic]))
	for key := range f.handlers[topic] {
		keys = append(keys, key)
	}
	sort.Ints(keys)
	handlers := make([]func([]byte), 0, len(keys))
	for _, key := range keys {
		handlers = append(handlers, f.handlers[topic][key])
	}
	f.mu.Unlock()

	for _, handler := range handlers {
		handler([]byte(payload))
	}
}

func (f *fakeTransport) liveHandlers(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers[topic])
}

func (f *fakeTransport) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.method)
	}
	return out
}

func (f *fakeTransport) callsTo(method string) []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeTransport) eventLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.events)
}

// fakeDisplay is an in-memory display. Clears are recorded into the
// transport's event log when record is set.
type fakeDisplay struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	size     Geometry
	handlers map[int]func(string)
	next     int
	clears   int
	record   func(string)
}

func newFakeDisplay(rows, cols int) *fakeDisplay {
	return &fakeDisplay{
		size:     Geometry{Rows: rows, Cols: cols},
		handlers: make(map[int]func(string)),
	}
}

func (d *fakeDisplay) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buf.Write(p)
}

func (d *fakeDisplay) Clear() {
	d.mu.Lock()
	d.buf.Reset()
	d.clears++
	record := d.record
	d.mu.Unlock()
	if record != nil {
		record("clear")
	}
}

func (d *fakeDisplay) Size() Geometry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

func (d *fakeDisplay) setSize(rows, cols int) {
	d.mu.Lock()
	d.size = Geometry{Rows: rows, Cols: cols}
	d.mu.Unlock()
}

func (d *fakeDisplay) OnData(handler func(string)) Disposable {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	key := d.next
	d.handlers[key] = handler
	return DisposeFunc(func() {
		d.mu.Lock()
		delete(d.handlers, key)
		d.mu.Unlock()
	})
}

// typeInput simulates a keystroke reaching every installed handler.
func (d *fakeDisplay) typeInput(data string) {
	d.mu.Lock()
	handlers := make([]func(string), 0, len(d.handlers))
	for _, h := range d.handlers {
		handlers = append(handlers, h)
	}
	d.mu.Unlock()
	for _, h := range handlers {
		h(data)
	}
}

func (d *fakeDisplay) handlerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers)
}

func (d *fakeDisplay) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buf.String()
}

// sequentialIDs returns an id generator yielding prefix-1, prefix-2, ...
func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// requireReceive reads one value from ch or fails the test.
func requireReceive[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	panic("unreachable")
}

func indexOf(events []string, event string) int {
	for i, e := range events {
		if e == event {
			return i
		}
	}
	return -1
}

func containsPrefix(events []string, prefix string) bool {
	for _, e := range events {
		if strings.HasPrefix(e, prefix) {
			return true
		}
	}
	return false
}
