package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/deckterm/deckterm/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	Connected bool
	SessionID string
	State     string
	Rows      int
	Cols      int
	Attempt   int // reconnect attempts since the last successful connect
	Width     int
}

// New creates a status bar model.
func New() Model {
	return Model{State: "uninitialized"}
}

// SetSession updates the session shown in the bar.
func (m *Model) SetSession(id, state string) {
	m.SessionID = id
	m.State = state
}

// View renders the status bar.
func (m Model) View() string {
	width := max(m.Width, 40)

	var connStr string
	switch {
	case m.Connected:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	case m.Attempt > 0:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorWarning).Render(fmt.Sprintf("○ Reconnecting (%d)...", m.Attempt))
	default:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}

	stateStr := lipgloss.NewStyle().Foreground(theme.StateColor(m.State)).
		Render(theme.StateGlyph(m.State) + " " + m.State)

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + stateStr
	if m.SessionID != "" {
		content += sep + theme.StyleDimmed.Render(m.SessionID)
	}
	if m.Rows > 0 && m.Cols > 0 {
		content += sep + theme.StyleDimmed.Render(fmt.Sprintf("%dx%d", m.Rows, m.Cols))
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
