package app

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// KeyMap defines the panel's own bindings. Every other key goes to the
// terminal.
type KeyMap struct {
	Quit    key.Binding
	Logs    key.Binding
	Refresh key.Binding
	Switch  key.Binding
	Escape  key.Binding
	Up      key.Binding
	Down    key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+q"),
			key.WithHelp("ctrl+q", "quit"),
		),
		Logs: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("ctrl+l", "logs"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "fetch backend log"),
		),
		Switch: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "frontend/backend"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close overlay"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "scroll down"),
		),
	}
}

var keySequences = map[tea.KeyType]string{
	tea.KeySpace:    " ",
	tea.KeyUp:       "\x1b[A",
	tea.KeyDown:     "\x1b[B",
	tea.KeyRight:    "\x1b[C",
	tea.KeyLeft:     "\x1b[D",
	tea.KeyHome:     "\x1b[H",
	tea.KeyEnd:      "\x1b[F",
	tea.KeyShiftTab: "\x1b[Z",
	tea.KeyInsert:   "\x1b[2~",
	tea.KeyDelete:   "\x1b[3~",
	tea.KeyPgUp:     "\x1b[5~",
	tea.KeyPgDown:   "\x1b[6~",
	tea.KeyF1:       "\x1bOP",
	tea.KeyF2:       "\x1bOQ",
	tea.KeyF3:       "\x1bOR",
	tea.KeyF4:       "\x1bOS",
}

// keyBytes maps a key press to the bytes a terminal would send for it. Keys
// with no mapping yield "".
func keyBytes(msg tea.KeyMsg) string {
	var data string
	switch {
	case msg.Type == tea.KeyRunes:
		data = string(msg.Runes)
	case msg.Type >= 0 && msg.Type < 0x20, msg.Type == 0x7f:
		// Control keys, enter, tab, backspace and escape are their own byte.
		data = string(rune(msg.Type))
	default:
		data = keySequences[msg.Type]
	}
	if data != "" && msg.Alt && !msg.Paste {
		data = "\x1b" + data
	}
	return data
}
