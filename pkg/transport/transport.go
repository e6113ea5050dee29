// Package transport defines the external collaborator contract the
// dispatcher sits on top of, plus one concrete, in-process reference
// implementation (Loopback) used by tests and the developer harness. The
// real shared-memory ring transport this design targets is out of scope
// here; Loopback exists only so the dispatcher can be exercised end-to-end
// without one.
package transport

import "context"

// EventKind classifies the events a Transport delivers to its Handler.
type EventKind int

const (
	// EventConnected is delivered exactly once before any EventData.
	EventConnected EventKind = iota
	// EventData carries one received frame.
	EventData
	// EventError reports a transport-level failure.
	EventError
)

// Handler is invoked once per received frame (or lifecycle event), from a
// single serialized context per endpoint.
type Handler func(buf []byte, kind EventKind, err error)

// Transport is the contract the endpoint layer consumes. Implementations
// need not be thread-safe across concurrent Send calls from the same side
// unless they document otherwise; Loopback is.
type Transport interface {
	// Init blocks until the peer connection is established. A transport
	// that never connects is an accepted failure mode: Init is allowed to
	// block indefinitely.
	Init(ctx context.Context) error

	// Send transmits a single opaque frame. It does not block on the
	// peer's processing of it — only on local transport backpressure. Send
	// must copy frame before returning: callers recycle it (e.g. back to a
	// bufpool.Pool) immediately afterward.
	Send(frame []byte) error

	// Close releases transport resources. After Close, Send returns an
	// error and no further Handler invocations occur.
	Close() error
}
