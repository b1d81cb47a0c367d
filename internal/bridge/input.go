package bridge

import (
	"context"
	"sync"

	"github.com/deckterm/deckterm/internal/logging"
	"github.com/deckterm/deckterm/internal/protocol"
)

// forwarder serialises input chunks onto one goroutine so keystrokes reach
// the backend in the order they were typed.
type forwarder struct {
	queue    chan string
	done     chan struct{}
	stopOnce sync.Once
}

func newForwarder(size int) *forwarder {
	return &forwarder{
		queue: make(chan string, size),
		done:  make(chan struct{}),
	}
}

func (f *forwarder) stop() {
	f.stopOnce.Do(func() { close(f.done) })
}

// attachInput installs the display input handler and starts the forwarding
// goroutine, replacing any previous handler. It reports false if the session
// was closed in the meantime.
func (b *Bridge) attachInput() bool {
	fwd := newForwarder(b.opts.InputQueue)
	handle := b.display.OnData(b.Forward)

	b.mu.Lock()
	if b.state == Closed {
		b.mu.Unlock()
		handle.Dispose()
		return false
	}
	oldInput, oldForwarder := b.input, b.forwarder
	b.input = handle
	b.forwarder = fwd
	b.mu.Unlock()

	if oldInput != nil {
		oldInput.Dispose()
	}
	if oldForwarder != nil {
		oldForwarder.stop()
	}

	go b.runForwarder(fwd)
	return true
}

// Forward queues data for send_terminal_input. It never blocks: when the
// queue is full or the session is not accepting input the chunk is dropped
// and logged.
func (b *Bridge) Forward(data string) {
	b.mu.Lock()
	fwd := b.forwarder
	b.mu.Unlock()

	if fwd == nil {
		b.logger.Debug("input dropped, session not attached", "data", logging.Preview(data))
		return
	}

	b.logger.Debug("input", "data", logging.Preview(data))
	select {
	case fwd.queue <- data:
	case <-fwd.done:
	default:
		b.logger.Warn("input queue full, dropping chunk", "bytes", len(data))
	}
}

func (b *Bridge) runForwarder(fwd *forwarder) {
	for {
		select {
		case <-fwd.done:
			return
		case data := <-fwd.queue:
			select {
			case <-fwd.done:
				return
			default:
			}
			if b.isClosed() {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), b.opts.CallTimeout)
			err := b.transport.Call(ctx, protocol.MethodSendTerminalInput, nil, b.id, data)
			cancel()
			if err != nil {
				b.logger.Warn("sending input failed", "err", err)
			}
		}
	}
}
