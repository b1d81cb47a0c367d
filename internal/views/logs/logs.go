// Package logs provides the scrollable log overlay of the panel. It shows
// either the local bridge log or the backend log fetched with get_log.
package logs

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/deckterm/deckterm/internal/theme"
)

const maxLines = 1000

// Source selects which log the overlay shows.
type Source int

const (
	Frontend Source = iota
	Backend
)

func (s Source) String() string {
	if s == Backend {
		return "backend"
	}
	return "frontend"
}

// Model holds log overlay state.
type Model struct {
	Frontend []string
	Backend  []string
	Source   Source
	Offset   int // scroll offset (from bottom)

	// BackendErr is shown instead of the backend log when fetching it failed.
	BackendErr string
}

// New creates an empty log model.
func New() Model {
	return Model{}
}

// SetFrontend replaces the frontend log with the lines of text.
func (m *Model) SetFrontend(text string) {
	m.Frontend = splitLines(text)
	m.clampOffset()
}

// SetBackend replaces the backend log and clears any fetch error.
func (m *Model) SetBackend(text string) {
	m.Backend = splitLines(text)
	m.BackendErr = ""
	if m.Source == Backend {
		m.Offset = 0
	}
}

// Toggle switches between the frontend and backend logs.
func (m *Model) Toggle() {
	if m.Source == Frontend {
		m.Source = Backend
	} else {
		m.Source = Frontend
	}
	m.Offset = 0
}

// Lines returns the lines of the selected log.
func (m Model) Lines() []string {
	if m.Source == Backend {
		return m.Backend
	}
	return m.Frontend
}

// ScrollUp moves the viewport up.
func (m *Model) ScrollUp(n int) {
	m.Offset += n
	m.clampOffset()
}

// ScrollDown moves the viewport down.
func (m *Model) ScrollDown(n int) {
	m.Offset -= n
	if m.Offset < 0 {
		m.Offset = 0
	}
}

func (m *Model) clampOffset() {
	limit := max(len(m.Lines())-1, 0)
	if m.Offset > limit {
		m.Offset = limit
	}
}

func panelStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder)
}

// View renders the selected log as an overlay panel.
func (m Model) View(width, height int) string {
	innerW := max(width-4, 20)
	visibleLines := max(height-8, 3)

	title := theme.StyleHeader.Render(fmt.Sprintf(" %s LOG ", strings.ToUpper(m.Source.String())))
	lines := m.Lines()
	help := theme.StyleDimmed.Render(fmt.Sprintf("tab:switch  ctrl+r:refresh  j/k:scroll  esc:close  %d lines", len(lines)))

	switch {
	case m.Source == Backend && m.BackendErr != "":
		body := lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("  " + m.BackendErr)
		return panelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", help))
	case len(lines) == 0:
		body := theme.StyleDimmed.Render("  No log lines yet.")
		return panelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", help))
	}

	end := max(len(lines)-m.Offset, 0)
	start := max(end-visibleLines, 0)

	textW := max(innerW-4, 10)
	rendered := make([]string, 0, end-start)
	for _, line := range lines[start:end] {
		line = ansi.Truncate(line, textW, "...")
		rendered = append(rendered, lipgloss.NewStyle().Foreground(theme.LevelColor(levelOf(line))).Render(line))
	}

	scrollIndicator := ""
	if m.Offset > 0 {
		scrollIndicator = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d more", m.Offset))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(rendered, "\n"), scrollIndicator, help)
	return panelStyle(innerW).Render(content)
}

// levelOf finds the level tag of a log line ("15:04:05 INFO bridge: ...").
func levelOf(line string) string {
	fields := strings.Fields(line)
	for i := 0; i < len(fields) && i < 3; i++ {
		switch fields[i] {
		case "DEBU", "INFO", "WARN", "ERRO", "FATA":
			return fields[i]
		}
	}
	return ""
}

func splitLines(text string) []string {
	text = strings.TrimRight(ansi.Strip(text), "\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return lines
}
