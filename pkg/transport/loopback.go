package transport

import (
	"context"
	"errors"
	"sync"
)

// Loopback is a pair of in-process peers connected by two directional
// channels, standing in for the shared-memory ring the design targets. Frames
// are handed off to Handler on their own goroutine as they arrive, matching
// the endpoint layer's per-destination serialization (spec.md's "single
// serialized context per endpoint," not per side): a handler blocked waiting
// on a nested call's reply must not be able to wedge delivery of any other
// endpoint's frames, including the reply itself.
type Loopback struct {
	out     chan []byte
	in      chan []byte
	handler Handler

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// NewLoopbackPair builds two connected Loopback peers. handlerA/handlerB
// receive frames sent by the *other* side. Both sides deliver EventConnected
// exactly once before any EventData.
func NewLoopbackPair(handlerA, handlerB Handler) (a, b *Loopback) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)

	a = &Loopback{out: ab, in: ba, handler: handlerA, closed: make(chan struct{})}
	b = &Loopback{out: ba, in: ab, handler: handlerB, closed: make(chan struct{})}
	return a, b
}

// Init starts the receive loop and immediately signals EventConnected; the
// in-process pair never fails to connect, so ctx is only consulted for
// early cancellation.
func (l *Loopback) Init(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	l.handler(nil, EventConnected, nil)

	l.wg.Add(1)
	go l.receiveLoop()
	return nil
}

func (l *Loopback) receiveLoop() {
	defer l.wg.Done()
	for {
		select {
		case buf, ok := <-l.in:
			if !ok {
				return
			}
			l.wg.Add(1)
			go func() {
				defer l.wg.Done()
				l.handler(buf, EventData, nil)
			}()
		case <-l.closed:
			return
		}
	}
}

// Send transmits frame to the peer. It copies frame so the caller may reuse
// or recycle its buffer (e.g. back to a bufpool) immediately after Send
// returns.
func (l *Loopback) Send(frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)

	select {
	case <-l.closed:
		return errors.New("transport: send on closed loopback")
	default:
	}

	select {
	case l.out <- cp:
		return nil
	case <-l.closed:
		return errors.New("transport: send on closed loopback")
	}
}

// Close shuts down the receive loop and unblocks any pending Send.
func (l *Loopback) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
	})
	l.wg.Wait()
	return nil
}
