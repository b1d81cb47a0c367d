package ptyhost

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deckterm/deckterm/internal/protocol"
)

const (
	exitNotice = "\r\n[process exited]\r\n"
	closeWait  = 2 * time.Second
)

// Subscriber receives output events for the terminals it subscribed to.
// Publish must not block; a slow subscriber drops events.
type Subscriber interface {
	Publish(topic string, payload []byte)
}

// Terminal is one hosted session.
type Terminal struct {
	id      string
	topic   string
	proc    Process
	backlog *RingBuffer
	logger  *log.Logger
	done    chan struct{}

	// mu orders backlog snapshots against live publishes, so a subscriber
	// sees the backlog followed by exactly the output written after it.
	mu           sync.Mutex
	size         Size
	subs         map[Subscriber]bool // value: backlog sent, live output flows
	createdAt    time.Time
	lastActivity time.Time
	orphanSince  time.Time
	exited       bool
}

func newTerminal(id string, proc Process, size Size, backlogSize int, logger *log.Logger, now time.Time) *Terminal {
	return &Terminal{
		id:           id,
		topic:        protocol.OutputTopic(id),
		proc:         proc,
		backlog:      NewRingBuffer(backlogSize),
		logger:       logger.With("session", id),
		done:         make(chan struct{}),
		size:         size,
		subs:         make(map[Subscriber]bool),
		createdAt:    now,
		lastActivity: now,
		orphanSince:  now,
	}
}

// pump copies process output into the backlog and out to subscribers until
// the process ends.
func (t *Terminal) pump() {
	defer close(t.done)
	buf := make([]byte, 32*1024)
	for {
		n, err := t.proc.Read(buf)
		if n > 0 {
			t.emit(append([]byte(nil), buf[:n]...))
		}
		if err != nil {
			t.logger.Debug("output ended", "err", err)
			t.emit([]byte(exitNotice))
			t.mu.Lock()
			t.exited = true
			t.mu.Unlock()
			return
		}
	}
}

func (t *Terminal) emit(chunk []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.backlog.Write(chunk)
	t.lastActivity = time.Now()
	for sub, live := range t.subs {
		if live {
			sub.Publish(t.topic, chunk)
		}
	}
}

// subscribe registers sub. Live output starts once its backlog is sent.
func (t *Terminal) subscribe(sub Subscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.subs[sub]; !ok {
		t.subs[sub] = false
	}
	t.orphanSince = time.Time{}
}

// sendBacklog publishes the retained output to sub and switches it to live
// output. An unsubscribed caller gets a one-off snapshot.
func (t *Terminal) sendBacklog(sub Subscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if data := t.backlog.Bytes(); len(data) > 0 {
		sub.Publish(t.topic, data)
	}
	if _, ok := t.subs[sub]; ok {
		t.subs[sub] = true
	}
}

// unsubscribe removes sub and reports whether it was subscribed.
func (t *Terminal) unsubscribe(sub Subscriber, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.subs[sub]; !ok {
		return false
	}
	delete(t.subs, sub)
	if len(t.subs) == 0 {
		t.orphanSince = now
	}
	return true
}

func (t *Terminal) input(data string) error {
	t.mu.Lock()
	exited := t.exited
	t.mu.Unlock()
	if exited {
		return ErrExited
	}
	_, err := t.proc.Write([]byte(data))
	return err
}

func (t *Terminal) resize(size Size) error {
	if err := t.proc.Resize(size); err != nil {
		return err
	}
	t.mu.Lock()
	t.size = size
	t.mu.Unlock()
	return nil
}

// orphaned reports how long the terminal has had no subscribers.
func (t *Terminal) orphaned(now time.Time) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.subs) > 0 || t.orphanSince.IsZero() {
		return 0, false
	}
	return now.Sub(t.orphanSince), true
}

// close kills the process and waits a bounded time for the pump to drain.
// Orphaned grandchildren can hold the pty open past that.
func (t *Terminal) close() {
	if err := t.proc.Close(); err != nil {
		t.logger.Warn("closing process", "err", err)
	}
	select {
	case <-t.done:
	case <-time.After(closeWait):
		t.logger.Warn("output pump still running after close")
	}
}

func (t *Terminal) info() protocol.SessionInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return protocol.SessionInfo{
		ID:           t.id,
		PID:          t.proc.PID(),
		Rows:         t.size.Rows,
		Cols:         t.size.Cols,
		Subscribers:  len(t.subs),
		BacklogBytes: t.backlog.Len(),
		CreatedAt:    t.createdAt,
		LastActivity: t.lastActivity,
		Exited:       t.exited,
	}
}
