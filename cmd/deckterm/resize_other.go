//go:build windows

package main

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/deckterm/deckterm/internal/bridge"
)

// watchResize is a no-op: there is no resize signal to watch.
func watchResize(context.Context, *bridge.Bridge, *log.Logger) func() {
	return func() {}
}
