package bridge

import (
	"context"

	"github.com/deckterm/deckterm/internal/protocol"
)

// Stop detaches the session. It disposes the output subscription before
// touching anything else, clears the display, and finally asks the backend to
// release the session. The release call is bounded by ctx and the configured
// unsubscribe timeout; its failure is only logged. Stop is idempotent and
// safe to call before or during Start.
func (b *Bridge) Stop(ctx context.Context) {
	b.mu.Lock()
	if b.state == Closed {
		b.mu.Unlock()
		return
	}
	b.state = Closed
	started := b.started
	output, input, fwd := b.output, b.input, b.forwarder
	b.output, b.input, b.forwarder = nil, nil, nil
	b.mu.Unlock()

	b.settle()
	b.notifyState(Closed)

	if output != nil {
		output.Dispose()
	}
	if input != nil {
		input.Dispose()
	}
	if fwd != nil {
		fwd.stop()
	}

	if b.display != nil {
		b.display.Clear()
	}

	if !started {
		b.logger.Debug("closed before start")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, b.opts.UnsubscribeTimeout)
	defer cancel()
	if err := b.transport.Call(ctx, protocol.MethodUnsubscribeTerminal, nil, b.id); err != nil {
		b.logger.Warn("unsubscribe failed", "err", err)
	}
	b.logger.Info("terminal closed")
}
