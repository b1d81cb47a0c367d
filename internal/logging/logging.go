// Package logging builds the structured loggers used across deckterm.
package logging

import (
	"encoding/json"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// previewLimit caps how much of an input or output chunk is echoed into logs.
const previewLimit = 50

// New returns a logger writing to w at the named level ("debug", "info",
// "warn", "error"). Unknown levels fall back to info.
func New(w io.Writer, level, prefix string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		Prefix:          prefix,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	})
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// Preview quotes s for a log line, truncating long chunks.
func Preview(s string) string {
	if len(s) <= previewLimit {
		return quote(s)
	}
	return quote(s[:previewLimit]) + "..."
}

func quote(s string) string {
	data, err := json.Marshal(s)
	if err != nil {
		return "?"
	}
	return string(data)
}
