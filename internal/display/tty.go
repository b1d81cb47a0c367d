package display

import (
	"bytes"
	"io"
	"sync"

	"github.com/deckterm/deckterm/internal/bridge"
	"golang.org/x/term"
)

// DetachKey ends an attach session (ctrl+]).
const DetachKey = 0x1d

const clearSequence = "\x1b[2J\x1b[H"

var _ bridge.Display = (*TTY)(nil)

// TTY is a bridge.Display backed by the local terminal.
type TTY struct {
	in  io.Reader
	out io.Writer
	fd  int

	// Fallback is reported by Size when fd is not a terminal.
	Fallback bridge.Geometry

	mu       sync.Mutex
	handlers map[int]func(string)
	next     int
	saved    *term.State
}

// NewTTY reads keys from in and writes output to out. fd is the terminal
// descriptor used for raw mode and size queries.
func NewTTY(in io.Reader, out io.Writer, fd int) *TTY {
	return &TTY{
		in:       in,
		out:      out,
		fd:       fd,
		Fallback: bridge.Geometry{Rows: 24, Cols: 80},
		handlers: make(map[int]func(string)),
	}
}

// IsTerminal reports whether fd is a terminal.
func (t *TTY) IsTerminal() bool {
	return term.IsTerminal(t.fd)
}

// MakeRaw switches the terminal to raw mode. Restore undoes it.
func (t *TTY) MakeRaw() error {
	state, err := term.MakeRaw(t.fd)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.saved = state
	t.mu.Unlock()
	return nil
}

// Restore returns the terminal to the mode saved by MakeRaw.
func (t *TTY) Restore() error {
	t.mu.Lock()
	state := t.saved
	t.saved = nil
	t.mu.Unlock()
	if state == nil {
		return nil
	}
	return term.Restore(t.fd, state)
}

func (t *TTY) Write(p []byte) (int, error) {
	return t.out.Write(p)
}

func (t *TTY) Clear() {
	io.WriteString(t.out, clearSequence)
}

func (t *TTY) Size() bridge.Geometry {
	cols, rows, err := term.GetSize(t.fd)
	if err != nil || rows <= 0 || cols <= 0 {
		return t.Fallback
	}
	return bridge.Geometry{Rows: rows, Cols: cols}
}

func (t *TTY) OnData(handler func(string)) bridge.Disposable {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	key := t.next
	t.handlers[key] = handler
	return bridge.DisposeFunc(func() {
		t.mu.Lock()
		delete(t.handlers, key)
		t.mu.Unlock()
	})
}

// Run forwards keyboard input to the handlers until the detach key is
// pressed (nil) or reading fails.
func (t *TTY) Run() error {
	buf := make([]byte, 4096)
	for {
		n, err := t.in.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if i := bytes.IndexByte(chunk, DetachKey); i >= 0 {
				t.deliver(chunk[:i])
				return nil
			}
			t.deliver(chunk)
		}
		if err != nil {
			return err
		}
	}
}

func (t *TTY) deliver(p []byte) {
	if len(p) == 0 {
		return
	}
	data := string(p)
	t.mu.Lock()
	handlers := make([]func(string), 0, len(t.handlers))
	for _, h := range t.handlers {
		handlers = append(handlers, h)
	}
	t.mu.Unlock()
	for _, h := range handlers {
		h(data)
	}
}
