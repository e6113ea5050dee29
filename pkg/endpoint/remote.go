package endpoint

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Remote is an opaque handle to a slot owned by the peer. Index is the
// peer-side local endpoint address this handle currently stands for.
type Remote struct {
	Index byte
}

// RemotePool maintains a free list of Remote handles sized to match the
// peer's worker count, with a counting semaphore so the number of
// simultaneously outstanding outbound commands never exceeds that capacity.
type RemotePool struct {
	sem *semaphore.Weighted

	mu   sync.Mutex
	free []Remote
}

// NewRemotePool builds a pool over the given peer endpoint addresses.
// len(addrs) must match the peer's configured local-endpoint capacity.
func NewRemotePool(addrs []byte) *RemotePool {
	p := &RemotePool{
		sem:  semaphore.NewWeighted(int64(len(addrs))),
		free: make([]Remote, 0, len(addrs)),
	}
	for _, a := range addrs {
		p.free = append(p.free, Remote{Index: a})
	}
	return p
}

// Reserve blocks on the semaphore until a slot is available, then pops one
// off the free list. Exhaustion blocks the caller rather than returning an
// error; ctx is only honored for cancellation of the wait itself — the wire
// protocol has no cancellation, but blocking forever on a ctx-less call is
// hostile to Go's idioms, so callers that want a deadline may cancel ctx
// without that being visible on the wire.
func (p *RemotePool) Reserve(ctx context.Context) (Remote, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Remote{}, err
	}

	p.mu.Lock()
	r := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.mu.Unlock()

	return r, nil
}

// Release returns r to the free list and posts the semaphore.
func (p *RemotePool) Release(r Remote) {
	p.mu.Lock()
	p.free = append(p.free, r)
	p.mu.Unlock()

	p.sem.Release(1)
}
