package ptyhost

import "sync"

// DefaultBacklogSize is the per-session output history kept for late
// subscribers.
const DefaultBacklogSize = 256 * 1024

// RingBuffer is a fixed-size circular byte buffer. Raw terminal output,
// escape sequences included, is kept so a new subscriber can replay the
// screen. New writes overwrite the oldest data once full.
//
// All methods are safe for concurrent use.
type RingBuffer struct {
	mu       sync.Mutex
	data     []byte
	capacity int
	// writePos is the next position to write within data.
	writePos int
	// total is the number of bytes ever written.
	total uint64
}

// NewRingBuffer creates a ring buffer with the given capacity in bytes.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultBacklogSize
	}
	return &RingBuffer{
		data:     make([]byte, capacity),
		capacity: capacity,
	}
}

// Write appends p, overwriting the oldest bytes if needed. It never fails,
// so a RingBuffer can sit behind io.MultiWriter.
func (r *RingBuffer) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Only the tail of an oversized write can survive.
	data := p
	if len(data) > r.capacity {
		data = data[len(data)-r.capacity:]
		r.writePos = (r.writePos + len(p) - len(data)) % r.capacity
	}
	for offset := 0; offset < len(data); {
		n := copy(r.data[r.writePos:], data[offset:])
		r.writePos = (r.writePos + n) % r.capacity
		offset += n
	}
	r.total += uint64(len(p))
	return len(p), nil
}

// Bytes returns a copy of the retained contents, oldest first.
func (r *RingBuffer) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := r.stored()
	if stored == 0 {
		return nil
	}
	out := make([]byte, stored)
	start := (r.writePos - stored + r.capacity) % r.capacity
	n := copy(out, r.data[start:])
	if n < stored {
		copy(out[n:], r.data[:stored-n])
	}
	return out
}

// Len returns the number of bytes currently retained.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stored()
}

// Total returns the number of bytes ever written.
func (r *RingBuffer) Total() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

func (r *RingBuffer) stored() int {
	if r.total > uint64(r.capacity) {
		return r.capacity
	}
	return int(r.total)
}
