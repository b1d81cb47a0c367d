package bridge

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deckterm/deckterm/internal/logging"
)

// State is the lifecycle position of a session.
type State int

const (
	Uninitialized State = iota
	Created
	Subscribed
	Ready
	Failed
	Closed
)

var stateNames = map[State]string{
	Uninitialized: "uninitialized",
	Created:       "created",
	Subscribed:    "subscribed",
	Ready:         "ready",
	Failed:        "failed",
	Closed:        "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Settled reports whether the handshake is over, successfully or not.
func (s State) Settled() bool {
	return s == Ready || s == Failed || s == Closed
}

// Notices written to the display when the handshake cannot complete.
const (
	CreateFailedNotice = "--- Failed to create terminal ---\r\n"
	ConnectErrorNotice = "--- Error connecting to terminal ---\r\n"
)

const (
	defaultCallTimeout        = 10 * time.Second
	defaultUnsubscribeTimeout = 2 * time.Second
	defaultInputQueue         = 256
)

// Options tunes a Bridge. The zero value is usable.
type Options struct {
	Logger *log.Logger

	// NewID generates the session token. Defaults to NewSessionID.
	NewID func() string

	// OnReady is called once the session becomes usable.
	OnReady func(id string)

	// OnStateChange is called after every state transition, outside any lock.
	OnStateChange func(id string, state State)

	// CallTimeout bounds each input forwarding call.
	CallTimeout time.Duration

	// UnsubscribeTimeout bounds the release call made by Stop.
	UnsubscribeTimeout time.Duration

	// InputQueue is the number of pending input chunks held before new ones
	// are dropped.
	InputQueue int
}

// Bridge binds one display to one remote terminal session.
type Bridge struct {
	id        string
	transport Transport
	display   Display
	logger    *log.Logger
	opts      Options

	mu        sync.Mutex
	state     State
	started   bool
	output    Disposable
	input     Disposable
	forwarder *forwarder

	settled    chan struct{}
	settleOnce sync.Once

	resize resizer
}

// New creates a bridge with a freshly generated session id. Nothing is sent
// to the backend until Start.
func New(transport Transport, display Display, opts Options) *Bridge {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.NewID == nil {
		opts.NewID = NewSessionID
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.UnsubscribeTimeout <= 0 {
		opts.UnsubscribeTimeout = defaultUnsubscribeTimeout
	}
	if opts.InputQueue <= 0 {
		opts.InputQueue = defaultInputQueue
	}

	id := opts.NewID()
	return &Bridge{
		id:        id,
		transport: transport,
		display:   display,
		logger:    opts.Logger.With("session", id),
		opts:      opts,
		settled:   make(chan struct{}),
	}
}

// ID returns the session token.
func (b *Bridge) ID() string {
	return b.id
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Settled is closed once the session is ready, has failed, or was stopped.
func (b *Bridge) Settled() <-chan struct{} {
	return b.settled
}

func (b *Bridge) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == Closed
}

// transition moves to state to. Closed is absorbing and Failed only leads to
// Closed. It reports whether the transition happened.
func (b *Bridge) transition(to State) bool {
	b.mu.Lock()
	from := b.state
	if from == Closed || (from == Failed && to != Closed) {
		b.mu.Unlock()
		return false
	}
	b.state = to
	b.mu.Unlock()

	b.logger.Debug("state", "from", from, "to", to)
	if to.Settled() {
		b.settle()
	}
	b.notifyState(to)
	return true
}

func (b *Bridge) notifyState(state State) {
	if b.opts.OnStateChange != nil {
		b.opts.OnStateChange(b.id, state)
	}
}

func (b *Bridge) settle() {
	b.settleOnce.Do(func() { close(b.settled) })
}
