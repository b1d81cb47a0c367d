package bridge

import (
	"context"
	"io"
	"sync"
)

// Transport is the call/event substrate between the bridge and the backend.
type Transport interface {
	// Call invokes method with args and blocks until the backend replies or
	// ctx ends. The reply is decoded into result unless result is nil.
	Call(ctx context.Context, method string, result any, args ...any) error

	// Subscribe registers handler for events published on topic. Events for a
	// topic are delivered one at a time in the order the transport received
	// them. Topics match exactly.
	Subscribe(topic string, handler func(payload []byte)) (Disposable, error)
}

// Disposable releases a handle. Dispose is idempotent.
type Disposable interface {
	Dispose()
}

type disposeFunc struct {
	once sync.Once
	fn   func()
}

// DisposeFunc wraps fn so that it runs at most once no matter how many times
// Dispose is called.
func DisposeFunc(fn func()) Disposable {
	return &disposeFunc{fn: fn}
}

func (d *disposeFunc) Dispose() {
	d.once.Do(func() {
		if d.fn != nil {
			d.fn()
		}
	})
}

// Geometry is a display size in character cells.
type Geometry struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// Valid reports whether both dimensions are positive.
func (g Geometry) Valid() bool {
	return g.Rows > 0 && g.Cols > 0
}

// Display is the local surface a session renders into and reads keystrokes
// from. Implementations must be safe for use from multiple goroutines:
// output arrives on the transport's goroutine while the host reads Size.
type Display interface {
	// Write appends output bytes to the display.
	io.Writer

	// Clear drops everything the remote session wrote.
	Clear()

	// Size returns the current geometry.
	Size() Geometry

	// OnData installs a handler for local input. Disposing the returned
	// handle uninstalls it.
	OnData(handler func(data string)) Disposable
}
