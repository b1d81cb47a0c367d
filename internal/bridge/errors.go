package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrCreateRefused means create_terminal returned false.
	ErrCreateRefused = errors.New("backend refused to create terminal")

	// ErrClosed is returned by operations on a stopped bridge.
	ErrClosed = errors.New("session closed")

	ErrAlreadyStarted  = errors.New("session already started")
	ErrNoDisplay       = errors.New("no display attached")
	ErrInvalidGeometry = errors.New("invalid geometry")
)

// Step identifies a handshake step.
type Step int

const (
	StepCreate Step = iota + 1
	StepAttachInput
	StepSubscribeOutput
	StepSubscribe
	StepRequestBacklog
)

var stepNames = map[Step]string{
	StepCreate:          "create_terminal",
	StepAttachInput:     "attach_input",
	StepSubscribeOutput: "subscribe_output",
	StepSubscribe:       "subscribe_terminal",
	StepRequestBacklog:  "send_terminal_buffer",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// StepError records the handshake step that failed.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("handshake %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
