package endpoint

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/marmos91/corerpc/pkg/bufpool"
	"github.com/marmos91/corerpc/pkg/transport"
	"github.com/marmos91/corerpc/pkg/wire"
)

// Filter is the synchronous predicate applied to every incoming frame on
// the receiving thread. It returns FilteredNone to
// request normal delivery, or a reserved code to short-circuit the frame
// straight into the waiting caller without ever publishing a buffer.
type Filter func(f wire.Frame) FilterCode

// Layer is the endpoint/transport glue: it owns the local-endpoint table,
// the remote free-list, and the wiring between a Transport and both.
type Layer struct {
	t        transport.Transport
	filter   Filter
	locals   []*Local // [0, poolSize) pool workers, [poolSize, poolSize+extra) foreign callers
	remote   *RemotePool
	poolSize int
	bufs     *bufpool.Pool

	nextExtra atomic.Int32 // next unassigned index within the extra range
}

// NewLayer builds a Layer with poolSize permanently-bound worker endpoints,
// extra lazily-assigned endpoints for foreign callers, and a remote pool
// sized to the peer's own poolSize: the remote pool must match the peer's
// local-endpoint capacity for its backpressure guarantee to hold. A nil
// bufs falls back to bufpool.New(nil)'s defaults.
func NewLayer(t transport.Transport, poolSize, extra int, peerAddrs []byte, filter Filter, bufs *bufpool.Pool) *Layer {
	total := poolSize + extra
	locals := make([]*Local, total)
	for i := range locals {
		locals[i] = NewLocal(i)
	}
	if bufs == nil {
		bufs = bufpool.New(nil)
	}
	return &Layer{
		t:        t,
		filter:   filter,
		locals:   locals,
		remote:   NewRemotePool(peerAddrs),
		poolSize: poolSize,
		bufs:     bufs,
	}
}

// Init starts the transport. It blocks until the peer connection is
// established; a transport that never connects is an accepted failure mode.
// The transport's Handler is wired by whoever built it, by calling
// HandleFrame.
func (l *Layer) Init(ctx context.Context) error {
	return l.t.Init(ctx)
}

// HandleFrame is the Transport Handler: it looks up the destination
// endpoint, runs the filter synchronously, and either short-circuits a
// filtered code into the destination or publishes the buffer for normal
// pickup.
func (l *Layer) HandleFrame(buf []byte, kind transport.EventKind, err error) {
	switch kind {
	case transport.EventConnected:
		return
	case transport.EventError:
		return // dropped: the layer does not forward transport errors anywhere
	}

	f, decodeErr := wire.Decode(buf)
	if decodeErr != nil {
		return // malformed frame from a reliable transport is a framing bug; dropped without any report
	}
	if !wire.ValidAddress(f.Dst) {
		return
	}

	dst := l.Local(int(f.Dst))
	if dst == nil {
		return
	}

	code := FilteredNone
	if l.filter != nil {
		code = l.filter(f)
	}

	if code != FilteredNone {
		dst.PublishFiltered(code)
		return
	}
	dst.Publish(buf)
}

// Local returns the local endpoint at idx, or nil if out of range.
func (l *Layer) Local(idx int) *Local {
	if idx < 0 || idx >= len(l.locals) {
		return nil
	}
	return l.locals[idx]
}

// PoolWorker returns the permanently-bound endpoint for pool worker i.
func (l *Layer) PoolWorker(i int) *Local {
	return l.locals[i]
}

// Attach lazily allocates one of the extra endpoints to a foreign caller.
// The allocation is an atomic increment and is never reversed: a caller's
// slot is never returned to the pool. Exhaustion returns a KindInternal
// error, which Dispatcher.Attach reports through its fatal handler.
func (l *Layer) Attach() (*Local, error) {
	extra := len(l.locals) - l.poolSize
	n := l.nextExtra.Add(1) - 1
	if int(n) >= extra {
		return nil, wire.NewError("endpoint.Attach", wire.KindInternal,
			fmt.Errorf("extra endpoint capacity (%d) exhausted", extra))
	}
	return l.locals[l.poolSize+int(n)], nil
}

// Send frames and transmits payload from src to the peer endpoint dst. The
// wire buffer is drawn from this layer's bufpool.Pool and returned to it
// once Transport.Send returns, per the Transport contract's requirement
// that Send does not retain frame past its own return.
func (l *Layer) Send(src byte, dst Remote, tag wire.Tag, payload []byte) error {
	f := wire.Frame{Dst: dst.Index, Src: src, Tag: tag, Payload: payload}
	buf := l.bufs.Get(3 + len(payload))
	buf = f.EncodeInto(buf)
	err := l.t.Send(buf)
	l.bufs.Put(buf)
	if err != nil {
		return wire.NewError("endpoint.Send", wire.KindNoMem, err)
	}
	return nil
}

// ReserveRemote blocks until a peer slot is free.
func (l *Layer) ReserveRemote(ctx context.Context) (Remote, error) {
	return l.remote.Reserve(ctx)
}

// ReleaseRemote returns r to the free list.
func (l *Layer) ReleaseRemote(r Remote) {
	l.remote.Release(r)
}

// ReleaseBuffer signals that a handler has finished reading the current
// endpoint's buffer, unblocking the transport thread that delivered it.
func (l *Layer) ReleaseBuffer(local *Local) {
	local.SignalDone()
}

// Shutdown closes the transport and every local endpoint, unblocking any
// goroutine parked in WaitInput so pool workers can return.
func (l *Layer) Shutdown() error {
	err := l.t.Close()
	for _, local := range l.locals {
		local.Close()
	}
	return err
}
