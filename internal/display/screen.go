// Package display provides bridge.Display implementations: Screen, an
// in-memory buffer rendered by the panel, and TTY, the local terminal used
// by attach mode.
package display

import (
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"
	"github.com/deckterm/deckterm/internal/bridge"
)

// maxScreenBytes bounds the raw output a Screen retains.
const maxScreenBytes = 512 * 1024

var _ bridge.Display = (*Screen)(nil)

// Screen keeps terminal output in memory and turns it into plain text lines.
// Escape sequences are stripped, not interpreted.
type Screen struct {
	mu       sync.Mutex
	raw      []byte
	size     bridge.Geometry
	handlers map[int]func(string)
	next     int
	version  uint64
}

// NewScreen creates an empty screen of rows x cols cells.
func NewScreen(rows, cols int) *Screen {
	return &Screen{
		size:     bridge.Geometry{Rows: rows, Cols: cols},
		handlers: make(map[int]func(string)),
	}
}

func (s *Screen) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = append(s.raw, p...)
	if over := len(s.raw) - maxScreenBytes; over > 0 {
		s.raw = append(s.raw[:0], s.raw[over:]...)
	}
	s.version++
	return len(p), nil
}

func (s *Screen) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = s.raw[:0]
	s.version++
}

func (s *Screen) Size() bridge.Geometry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// SetSize changes the geometry reported to the bridge.
func (s *Screen) SetSize(rows, cols int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.size = bridge.Geometry{Rows: rows, Cols: cols}
	s.version++
}

func (s *Screen) OnData(handler func(string)) bridge.Disposable {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	key := s.next
	s.handlers[key] = handler
	return bridge.DisposeFunc(func() {
		s.mu.Lock()
		delete(s.handlers, key)
		s.mu.Unlock()
	})
}

// Input delivers keyboard data to the registered handlers. It reports whether
// any handler received it.
func (s *Screen) Input(data string) bool {
	s.mu.Lock()
	handlers := make([]func(string), 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(data)
	}
	return len(handlers) > 0
}

// Version changes whenever the content or geometry does.
func (s *Screen) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Bytes returns a copy of the raw output.
func (s *Screen) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.raw...)
}

func (s *Screen) String() string {
	return string(s.Bytes())
}

// Lines renders the output as plain text and returns at most the last n
// lines, wrapped at the screen width. n <= 0 returns every line.
func (s *Screen) Lines(n int) []string {
	s.mu.Lock()
	text := string(s.raw)
	cols := s.size.Cols
	s.mu.Unlock()

	lines := render(ansi.Strip(text), cols)
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// render applies carriage return, backspace, tab and line wrapping to plain
// text.
func render(text string, cols int) []string {
	var lines []string
	var line []rune
	col := 0

	flush := func() {
		lines = append(lines, strings.TrimRight(string(line), " "))
		line = line[:0]
		col = 0
	}
	put := func(r rune) {
		if cols > 0 && col >= cols {
			flush()
		}
		for len(line) <= col {
			line = append(line, ' ')
		}
		line[col] = r
		col++
	}

	for _, r := range text {
		switch r {
		case '\n':
			flush()
		case '\r':
			col = 0
		case '\b':
			if col > 0 {
				col--
			}
		case '\t':
			next := (col/8 + 1) * 8
			for col < next {
				put(' ')
			}
		default:
			if r < 0x20 || r == 0x7f {
				continue
			}
			put(r)
		}
	}
	lines = append(lines, strings.TrimRight(string(line), " "))
	return lines
}
