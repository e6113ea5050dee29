package wire

import (
	"bytes"
	"errors"
	"fmt"
)

// Kind classifies framework-level errors surfaced to callers.
// Decoder-level application errors never use Kind — they ride inside the
// opaque RSP payload and are invisible to the dispatcher.
type Kind int

const (
	// KindNone marks a successful result with no error.
	KindNone Kind = iota

	// KindNoMem indicates a buffer or endpoint allocation failed.
	//
	// Wire mapping: none — this never reaches the peer, it is returned
	// directly to the local caller of Send/SendCmd.
	KindNoMem

	// KindInvalidParam indicates a caller-supplied argument is malformed
	// (e.g. a nil decoder passed to SendCmd).
	KindInvalidParam

	// KindInvalidState indicates an operation was attempted from a state
	// that forbids it (e.g. calling SendRsp twice for one CMD).
	KindInvalidState

	// KindInternal indicates a framework invariant was violated in a way
	// not attributable to caller input (should not occur; see FatalHandler).
	KindInternal

	// KindNotSupported indicates the peer has no decoder registered for
	// the requested (group, id) pair.
	//
	// Wire mapping: the callee emits an RSP carrying NotSupportedMarker.
	// SendCmd recognizes the marker before it reaches the caller's own
	// decoder and reports this Kind instead of the decoded payload.
	KindNotSupported
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNoMem:
		return "no-mem"
	case KindInvalidParam:
		return "invalid-param"
	case KindInvalidState:
		return "invalid-state"
	case KindInternal:
		return "internal"
	case KindNotSupported:
		return "not-supported"
	default:
		return "unknown"
	}
}

// Error wraps a Kind and an optional underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError constructs an *Error.
func NewError(op string, kind Kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

// KindOf extracts the Kind carried by err, or KindInternal if err does not
// wrap a *wire.Error.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Kind
	}
	return KindInternal
}

// NotSupportedMarker is the RSP payload a callee sends in place of an
// application reply when it has no command decoder registered for the
// requested (group, id). It is reserved at the framework level: a caller's
// installed response decoder never sees it directly, SendCmd recognizes it
// first and reports KindNotSupported instead.
var NotSupportedMarker = []byte{0x00, 'N', 'S', 0x00}

// IsNotSupported reports whether payload is the NotSupportedMarker.
func IsNotSupported(payload []byte) bool {
	return bytes.Equal(payload, NotSupportedMarker)
}
