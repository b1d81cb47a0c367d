package bridge

import (
	"context"
	"errors"

	"github.com/deckterm/deckterm/internal/protocol"
)

// Start brings the session from Uninitialized to Ready. It blocks on each
// backend call in turn. On failure the session is left Failed with a notice
// on the display, and the returned error is a *StepError. Start is not
// retried; a new attempt needs a new Bridge.
//
// If Stop runs while Start is waiting on the backend, Start issues no further
// calls and returns ErrClosed.
func (b *Bridge) Start(ctx context.Context) error {
	if b.display == nil {
		return ErrNoDisplay
	}

	b.mu.Lock()
	switch {
	case b.state == Closed:
		b.mu.Unlock()
		return ErrClosed
	case b.started:
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.started = true
	b.mu.Unlock()

	b.logger.Info("connecting terminal")

	if err := b.negotiate(ctx, b.display.Size(), true); err != nil {
		if errors.Is(err, ErrClosed) {
			return ErrClosed
		}
		b.logger.Warn("initial resize failed", "err", err)
	}

	var created bool
	if err := b.call(ctx, protocol.MethodCreateTerminal, &created, b.id); err != nil {
		return b.fail(StepCreate, err)
	}
	if b.isClosed() {
		return ErrClosed
	}
	if !created {
		return b.refuse()
	}
	b.transition(Created)
	b.logger.Debug("terminal created")

	if !b.attachInput() {
		return ErrClosed
	}
	b.logger.Debug("input handler registered")

	topic := protocol.OutputTopic(b.id)
	handle, err := b.transport.Subscribe(topic, b.route)
	if err != nil {
		return b.fail(StepSubscribeOutput, err)
	}
	if !b.installOutput(handle) {
		handle.Dispose()
		return ErrClosed
	}
	b.transition(Subscribed)
	b.logger.Debug("output listener registered", "topic", topic)

	if err := b.call(ctx, protocol.MethodSubscribeTerminal, nil, b.id); err != nil {
		return b.fail(StepSubscribe, err)
	}
	b.logger.Debug("subscribed to terminal")

	if err := b.call(ctx, protocol.MethodSendTerminalBuffer, nil, b.id); err != nil {
		return b.fail(StepRequestBacklog, err)
	}
	b.logger.Debug("backlog requested")

	if !b.transition(Ready) {
		return ErrClosed
	}
	b.logger.Info("terminal ready")
	if b.opts.OnReady != nil {
		b.opts.OnReady(b.id)
	}
	return nil
}

// call issues a backend call unless the session is already closed.
func (b *Bridge) call(ctx context.Context, method string, result any, args ...any) error {
	if b.isClosed() {
		return ErrClosed
	}
	return b.transport.Call(ctx, method, result, args...)
}

func (b *Bridge) installOutput(handle Disposable) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Closed {
		return false
	}
	if b.output != nil {
		b.output.Dispose()
	}
	b.output = handle
	return true
}

func (b *Bridge) refuse() error {
	b.logger.Error("create_terminal returned false")
	if !b.transition(Failed) {
		return ErrClosed
	}
	b.notice(CreateFailedNotice)
	return &StepError{Step: StepCreate, Err: ErrCreateRefused}
}

func (b *Bridge) fail(step Step, err error) error {
	if errors.Is(err, ErrClosed) || b.isClosed() {
		return ErrClosed
	}
	b.logger.Error("connecting terminal failed", "step", step, "err", err)
	if !b.transition(Failed) {
		return ErrClosed
	}
	b.releaseHandles()
	b.notice(ConnectErrorNotice)
	return &StepError{Step: step, Err: err}
}

// releaseHandles drops the output subscription and input handler of a failed
// session so nothing mutates the display behind the failure notice.
func (b *Bridge) releaseHandles() {
	b.mu.Lock()
	output, input, fwd := b.output, b.input, b.forwarder
	b.output, b.input, b.forwarder = nil, nil, nil
	b.mu.Unlock()

	if output != nil {
		output.Dispose()
	}
	if input != nil {
		input.Dispose()
	}
	if fwd != nil {
		fwd.stop()
	}
}

func (b *Bridge) notice(text string) {
	if _, err := b.display.Write([]byte(text)); err != nil {
		b.logger.Warn("write notice failed", "err", err)
	}
}
