// Package theme provides the Lip Gloss color palette and reusable styles
// for the deckterm panel. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Session state colors.
var (
	ColorUninitialized = lipgloss.Color("#4b5563")
	ColorConnecting    = lipgloss.Color("#7c3aed")
	ColorReady         = lipgloss.Color("#16a34a")
	ColorFailed        = lipgloss.Color("#dc2626")
	ColorClosed        = lipgloss.Color("#374151")
	ColorDefault       = lipgloss.Color("#9ca3af")
)

// Log level colors.
var (
	ColorDebug = lipgloss.Color("#6b7280")
	ColorInfo  = lipgloss.Color("#2563eb")
	ColorWarn  = lipgloss.Color("#d97706")
	ColorError = lipgloss.Color("#dc2626")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StateColor returns the color for a session state name.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "uninitialized":
		return ColorUninitialized
	case "created", "subscribed":
		return ColorConnecting
	case "ready":
		return ColorReady
	case "failed":
		return ColorFailed
	case "closed":
		return ColorClosed
	default:
		return ColorDefault
	}
}

// StateGlyph returns a Unicode glyph for a session state name.
func StateGlyph(state string) string {
	switch state {
	case "uninitialized":
		return "○"
	case "created", "subscribed":
		return "◎"
	case "ready":
		return "●"
	case "failed":
		return "✗"
	case "closed":
		return "·"
	default:
		return "?"
	}
}

// LevelColor returns the color for a log level tag such as "INFO" or "ERRO".
func LevelColor(level string) lipgloss.Color {
	switch level {
	case "DEBU":
		return ColorDebug
	case "INFO":
		return ColorInfo
	case "WARN":
		return ColorWarn
	case "ERRO", "FATA":
		return ColorError
	default:
		return ColorDimmed
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)
)
