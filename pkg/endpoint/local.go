// Package endpoint implements the address pools: a fixed table of
// LocalEndpoints (receive slots) bound to pool workers plus lazily-attached
// foreign callers, and a RemotePool of peer-owned slots bounded by a
// counting semaphore for backpressure.
package endpoint

import "sync"

// FilterCode is a small non-zero code a transport-level filter may return
// instead of "not filtered" (0).
type FilterCode byte

const (
	// FilteredNone means "not filtered, deliver normally."
	FilteredNone FilterCode = 0
	// FilteredResponse short-circuits an RSP into the waiting caller.
	FilteredResponse FilterCode = 1
	// FilteredAck short-circuits an ACK into the waiting caller.
	FilteredAck FilterCode = 2
	// FilteredClosed reports that the endpoint was shut down while
	// something was blocked waiting on it.
	FilteredClosed FilterCode = 3
)

// Delivery is what WaitInput returns: either a real buffer to dispatch, or a
// filtered code with no buffer (the filter already consumed it).
type Delivery struct {
	Buf      []byte
	Filtered FilterCode
}

// Local is one addressable receive slot.
//
// At most one unprocessed buffer is held at a time: Publish blocks until any
// previous filtered delivery's Done has fired, and the deliverer itself
// blocks on Done after a non-filtered Publish so the buffer is never
// recycled out from under a handler still reading it.
type Local struct {
	Index int

	mu            sync.Mutex
	waitForDone   bool
	bufferOwned   bool
	input         chan Delivery
	done          chan struct{}
	closed        chan struct{}
	closeOnce     sync.Once
	waitingForAck bool
	decoder       func([]byte)

	// UserData is an arbitrary per-endpoint slot for caller-attached state,
	// left for applications; the dispatcher does not touch it.
	UserData any
}

// NewLocal constructs a Local endpoint with the given index.
func NewLocal(index int) *Local {
	return &Local{
		Index:  index,
		input:  make(chan Delivery, 1),
		done:   make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Publish delivers buf as a normal (non-filtered) frame. It blocks first if
// a prior filtered delivery is still awaiting its Done signal, then waits
// for the consuming side to call SignalDone before returning, so the caller
// (the transport) does not recycle buf too early.
func (l *Local) Publish(buf []byte) {
	l.mu.Lock()
	waiting := l.waitForDone
	l.mu.Unlock()
	if waiting {
		<-l.done
	}

	l.mu.Lock()
	l.bufferOwned = false
	l.waitForDone = false
	l.mu.Unlock()

	l.input <- Delivery{Buf: buf}
	<-l.done
}

// PublishFiltered delivers a filtered code. Unlike Publish it does not wait
// for Done — the destination thread will raise it once it has consumed the
// code.
func (l *Local) PublishFiltered(code FilterCode) {
	l.mu.Lock()
	l.waitForDone = true
	l.mu.Unlock()

	l.input <- Delivery{Filtered: code}
}

// WaitInput blocks until a Delivery (normal or filtered) is published, or
// the endpoint is closed.
func (l *Local) WaitInput() Delivery {
	select {
	case d := <-l.input:
		return d
	case <-l.closed:
		return Delivery{Filtered: FilteredClosed}
	}
}

// Close unblocks any pending or future WaitInput with FilteredClosed. Safe
// to call more than once.
func (l *Local) Close() {
	l.closeOnce.Do(func() { close(l.closed) })
}

// SignalDone unblocks whoever is waiting on this endpoint's done signal:
// either Publish (normal delivery, buffer may now be recycled) or the
// filtered-delivery producer (its wait-for-done flag is cleared).
func (l *Local) SignalDone() {
	l.mu.Lock()
	l.waitForDone = false
	l.mu.Unlock()

	select {
	case l.done <- struct{}{}:
	default:
	}
}

// WaitingForAck reports whether this endpoint currently has an
// un-acknowledged EVT in flight: at most one may be outstanding per caller
// endpoint.
func (l *Local) WaitingForAck() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waitingForAck
}

// SetWaitingForAck sets or clears the waiting-for-ack flag and returns the
// previous value, so callers can save/restore it around nested dispatch.
func (l *Local) SetWaitingForAck(v bool) (prev bool) {
	l.mu.Lock()
	prev = l.waitingForAck
	l.waitingForAck = v
	l.mu.Unlock()
	return prev
}

// InstallDecoder installs d as the response decoder awaited by this
// endpoint's current outbound call and returns whatever decoder was
// previously installed, so the caller can restore it once the call
// completes. A Go closure stands in for the native (decoder, user_data)
// pair: the application captures its own context when it builds d.
func (l *Local) InstallDecoder(d func([]byte)) (prev func([]byte)) {
	l.mu.Lock()
	prev = l.decoder
	l.decoder = d
	l.mu.Unlock()
	return prev
}

// Decoder returns the currently installed response decoder, or nil.
func (l *Local) Decoder() func([]byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.decoder
}
