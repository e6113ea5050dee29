package dispatcher

import (
	"context"
	"sync"
)

// ThreadPool owns the goroutines that run a Dispatcher's permanently-bound
// pool workers. Each worker goroutine spends its whole lifetime inside
// Dispatcher.Start, blocked on its own endpoint until the dispatcher is shut
// down.
type ThreadPool struct {
	d       *Dispatcher
	workers []*Caller
	wg      sync.WaitGroup
}

// NewThreadPool resolves size pool-worker Callers from d.
func NewThreadPool(d *Dispatcher, size int) *ThreadPool {
	workers := make([]*Caller, size)
	for i := range workers {
		workers[i] = d.Worker(i)
	}
	return &ThreadPool{d: d, workers: workers}
}

// Run starts every worker goroutine and blocks until ctx is canceled, at
// which point it shuts down the dispatcher so the workers' blocking reads
// unblock and the pool can wind down.
func (p *ThreadPool) Run(ctx context.Context) {
	for _, c := range p.workers {
		p.wg.Add(1)
		go func(c *Caller) {
			defer p.wg.Done()
			p.d.Start(c)
		}(c)
	}

	<-ctx.Done()
	_ = p.d.Shutdown()
}

// Wait blocks until every worker goroutine has exited. Workers only exit
// once the dispatcher is shut down and their blocking endpoint read returns
// with no further deliveries, so Wait is meant to be called after Run's ctx
// has been canceled.
func (p *ThreadPool) Wait() {
	p.wg.Wait()
}
