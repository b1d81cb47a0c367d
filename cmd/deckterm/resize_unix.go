//go:build !windows

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/deckterm/deckterm/internal/bridge"
)

// watchResize refits b whenever the local terminal is resized. The returned
// func stops watching.
func watchResize(ctx context.Context, b *bridge.Bridge, logger *log.Logger) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH)
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigCh:
				if err := b.Refit(ctx); err != nil {
					logger.Warn("resize failed", "err", err)
				}
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		cancel()
	}
}
