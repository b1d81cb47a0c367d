package ptyhost

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deckterm/deckterm/internal/logging"
	"github.com/deckterm/deckterm/internal/protocol"
)

var (
	ErrUnknownSession = errors.New("unknown terminal")
	ErrExited         = errors.New("terminal process has exited")
	ErrInvalidSize    = errors.New("invalid terminal size")
)

// maxPending caps geometry recorded for ids that were never created.
const maxPending = 256

// Options configures a Host.
type Options struct {
	Spawn         Spawner
	BacklogSize   int
	DefaultSize   Size
	MaxSessions   int
	OrphanTimeout time.Duration
	ReapInterval  time.Duration
	Mock          bool
	Logger        *log.Logger
}

type pendingSize struct {
	size Size
	at   time.Time
}

// Host owns every terminal session of the backend.
type Host struct {
	opts   Options
	logger *log.Logger
	now    func() time.Time

	mu      sync.Mutex
	terms   map[string]*Terminal
	pending map[string]pendingSize
	closed  bool
}

// NewHost creates a host. A nil Spawn runs the echo program.
func NewHost(opts Options) *Host {
	if opts.Spawn == nil {
		opts.Spawn = EchoSpawner()
		opts.Mock = true
	}
	if opts.BacklogSize <= 0 {
		opts.BacklogSize = DefaultBacklogSize
	}
	if !opts.DefaultSize.Valid() {
		opts.DefaultSize = Size{Rows: 15, Cols: 80}
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 16
	}
	if opts.OrphanTimeout <= 0 {
		opts.OrphanTimeout = 30 * time.Second
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Host{
		opts:    opts,
		logger:  opts.Logger,
		now:     time.Now,
		terms:   make(map[string]*Terminal),
		pending: make(map[string]pendingSize),
	}
}

// Create starts a session for id. It reports true if the session exists
// afterwards, including when it already existed, and false when the host is
// full or the process could not be started.
func (h *Host) Create(id string) bool {
	if id == "" {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if _, ok := h.terms[id]; ok {
		h.logger.Debug("terminal already exists", "session", id)
		return true
	}
	if len(h.terms) >= h.opts.MaxSessions {
		h.logger.Warn("session limit reached", "session", id, "max", h.opts.MaxSessions)
		return false
	}

	size := h.opts.DefaultSize
	if p, ok := h.pending[id]; ok {
		size = p.size
		delete(h.pending, id)
	}

	proc, err := h.opts.Spawn(size)
	if err != nil {
		h.logger.Error("spawn failed", "session", id, "err", err)
		return false
	}

	t := newTerminal(id, proc, size, h.opts.BacklogSize, h.logger, h.now())
	h.terms[id] = t
	go t.pump()

	h.logger.Info("terminal created", "session", id, "pid", proc.PID(), "rows", size.Rows, "cols", size.Cols)
	return true
}

// Subscribe registers sub for output of id. It reports false for an unknown id.
func (h *Host) Subscribe(id string, sub Subscriber) bool {
	t, ok := h.get(id)
	if !ok {
		return false
	}
	t.subscribe(sub)
	return true
}

// SendBacklog publishes the backlog of id to sub. It reports false for an
// unknown id.
func (h *Host) SendBacklog(id string, sub Subscriber) bool {
	t, ok := h.get(id)
	if !ok {
		return false
	}
	t.sendBacklog(sub)
	return true
}

// Input writes data to the process of id.
func (h *Host) Input(id, data string) error {
	t, ok := h.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return t.input(data)
}

// Resize changes the window of id. For an id not created yet the geometry is
// kept and used when it is.
func (h *Host) Resize(id string, size Size) error {
	if !size.Valid() {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, size.Rows, size.Cols)
	}
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrUnknownSession)
	}

	h.mu.Lock()
	t, ok := h.terms[id]
	if !ok {
		h.recordPending(id, size)
		h.mu.Unlock()
		h.logger.Debug("recorded pending size", "session", id, "rows", size.Rows, "cols", size.Cols)
		return nil
	}
	h.mu.Unlock()

	return t.resize(size)
}

// recordPending stores size for id, evicting the oldest entry when full.
// Called with mu held.
func (h *Host) recordPending(id string, size Size) {
	if _, ok := h.pending[id]; !ok && len(h.pending) >= maxPending {
		var oldestID string
		var oldest time.Time
		for pid, p := range h.pending {
			if oldestID == "" || p.at.Before(oldest) {
				oldestID, oldest = pid, p.at
			}
		}
		delete(h.pending, oldestID)
	}
	h.pending[id] = pendingSize{size: size, at: h.now()}
}

// Release drops sub from id and ends the session.
func (h *Host) Release(id string, sub Subscriber) {
	h.mu.Lock()
	t, ok := h.terms[id]
	delete(h.terms, id)
	delete(h.pending, id)
	h.mu.Unlock()
	if !ok {
		return
	}

	t.unsubscribe(sub, h.now())
	t.close()
	h.logger.Info("terminal released", "session", id)
}

// Detach drops sub from every session. The sessions keep running until they
// are released or reaped.
func (h *Host) Detach(sub Subscriber) {
	now := h.now()
	for _, t := range h.snapshot() {
		if t.unsubscribe(sub, now) {
			h.logger.Debug("subscriber detached", "session", t.id)
		}
	}
}

// Run reaps orphaned sessions until ctx is cancelled.
func (h *Host) Run(ctx context.Context) {
	ticker := time.NewTicker(h.opts.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.reap()
		}
	}
}

// reap releases sessions that have had no subscribers for the orphan timeout
// and forgets stale pending geometry.
func (h *Host) reap() int {
	now := h.now()

	h.mu.Lock()
	var victims []*Terminal
	for id, t := range h.terms {
		if idle, ok := t.orphaned(now); ok && idle >= h.opts.OrphanTimeout {
			victims = append(victims, t)
			delete(h.terms, id)
		}
	}
	for id, p := range h.pending {
		if now.Sub(p.at) >= h.opts.OrphanTimeout {
			delete(h.pending, id)
		}
	}
	h.mu.Unlock()

	for _, t := range victims {
		t.close()
		h.logger.Info("reaped orphaned terminal", "session", t.id)
	}
	return len(victims)
}

// List describes every session, oldest first, with process statistics where
// available.
func (h *Host) List() []protocol.SessionInfo {
	terms := h.snapshot()
	out := make([]protocol.SessionInfo, 0, len(terms))
	for _, t := range terms {
		info := t.info()
		info.Mock = h.opts.Mock
		if info.PID > 0 && !info.Exited {
			if st, err := processStats(info.PID); err == nil {
				info.RSSBytes = st.RSS
				info.CPUPercent = st.CPUPercent
			}
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Count returns the number of live sessions.
func (h *Host) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.terms)
}

// Close ends every session. Later Create calls fail.
func (h *Host) Close() {
	h.mu.Lock()
	h.closed = true
	terms := make([]*Terminal, 0, len(h.terms))
	for _, t := range h.terms {
		terms = append(terms, t)
	}
	h.terms = make(map[string]*Terminal)
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, t := range terms {
		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.close()
		}()
	}
	wg.Wait()
}

func (h *Host) get(id string) (*Terminal, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.terms[id]
	return t, ok
}

func (h *Host) snapshot() []*Terminal {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Terminal, 0, len(h.terms))
	for _, t := range h.terms {
		out = append(out, t)
	}
	return out
}
