// Package bridge connects a local display surface to one remote terminal
// session hosted by the deckterm backend.
//
// A [Bridge] owns a single session for the lifetime of one mount. [Bridge.Start]
// runs the handshake against a [Transport]:
//
//  1. change_terminal_window_size with the display's initial geometry
//  2. create_terminal
//  3. install the input handler on the display
//  4. subscribe to terminal_output#<id>
//  5. subscribe_terminal
//  6. send_terminal_buffer (backlog replay)
//
// The output subscription is registered before the backlog is requested so
// nothing emitted between the two steps is lost. Once ready, keystrokes from
// the display are forwarded in order by a single goroutine and output events
// are written to the display in delivery order.
//
// [Bridge.Stop] tears the session down: it stops local mutation first, clears
// the display, then asks the backend to release the session. A stopped bridge
// issues no further calls; remounting means creating a new Bridge, which
// always allocates a new session id.
package bridge
