package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/deckterm/deckterm/internal/protocol"
)

// resizer coalesces geometry requests. want always holds the newest request;
// sendMu serialises calls so a stale geometry is never sent after a newer one.
type resizer struct {
	mu   sync.Mutex
	want Geometry

	sendMu sync.Mutex
	sent   Geometry
}

// Refit reads the display's current geometry and tells the backend if it
// changed.
func (b *Bridge) Refit(ctx context.Context) error {
	if b.display == nil {
		return ErrNoDisplay
	}
	return b.negotiate(ctx, b.display.Size(), false)
}

// Resize tells the backend the display now has rows x cols cells. Before
// Start the request is only recorded; Start sends the display geometry.
func (b *Bridge) Resize(ctx context.Context, rows, cols int) error {
	return b.negotiate(ctx, Geometry{Rows: rows, Cols: cols}, false)
}

// Geometry returns the last geometry the backend acknowledged.
func (b *Bridge) Geometry() Geometry {
	b.resize.sendMu.Lock()
	defer b.resize.sendMu.Unlock()
	return b.resize.sent
}

func (b *Bridge) negotiate(ctx context.Context, g Geometry, force bool) error {
	if !g.Valid() {
		return fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, g.Rows, g.Cols)
	}

	b.resize.mu.Lock()
	b.resize.want = g
	b.resize.mu.Unlock()

	b.mu.Lock()
	started, state := b.started, b.state
	b.mu.Unlock()
	switch {
	case state == Closed:
		return ErrClosed
	case !started && !force:
		return nil
	}

	b.resize.sendMu.Lock()
	defer b.resize.sendMu.Unlock()

	b.resize.mu.Lock()
	want := b.resize.want
	b.resize.mu.Unlock()

	if want == b.resize.sent && !force {
		return nil
	}

	b.logger.Debug("resize", "rows", want.Rows, "cols", want.Cols)
	if err := b.call(ctx, protocol.MethodChangeWindowSize, nil, b.id, want.Rows, want.Cols); err != nil {
		return fmt.Errorf("resize to %dx%d: %w", want.Rows, want.Cols, err)
	}
	b.resize.sent = want
	return nil
}
