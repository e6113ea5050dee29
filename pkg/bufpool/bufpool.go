// Package bufpool provides a small tiered pool for outbound transmit
// buffers, the only general-purpose allocation the dispatcher performs on
// the send path.
//
// Two tiers cover this domain's traffic shape: most CMD/EVT/RSP/ACK payloads
// are tiny control-style messages, with an occasional larger bulk payload.
// Requests above the large tier are allocated directly and not pooled.
package bufpool

import "sync"

const (
	// DefaultSmallSize covers headers and small control payloads.
	DefaultSmallSize = 256
	// DefaultLargeSize covers bulk command/event payloads.
	DefaultLargeSize = 16 << 10
)

// Pool manages two size-classed sync.Pools plus direct fallback allocation.
type Pool struct {
	small, large sync.Pool
	smallSize    int
	largeSize    int
}

// Config configures tier sizes; zero values fall back to the defaults.
type Config struct {
	SmallSize int
	LargeSize int
}

// New creates a Pool. A nil cfg uses DefaultSmallSize/DefaultLargeSize.
func New(cfg *Config) *Pool {
	small, large := DefaultSmallSize, DefaultLargeSize
	if cfg != nil {
		if cfg.SmallSize > 0 {
			small = cfg.SmallSize
		}
		if cfg.LargeSize > 0 {
			large = cfg.LargeSize
		}
	}
	p := &Pool{smallSize: small, largeSize: large}
	p.small.New = func() any { return make([]byte, 0, p.smallSize) }
	p.large.New = func() any { return make([]byte, 0, p.largeSize) }
	return p
}

// Get returns a buffer with capacity >= size and length 0.
func (p *Pool) Get(size int) []byte {
	switch {
	case size <= p.smallSize:
		return p.small.Get().([]byte)[:0]
	case size <= p.largeSize:
		return p.large.Get().([]byte)[:0]
	default:
		return make([]byte, 0, size)
	}
}

// Put returns buf to its size class for reuse. Buffers outside both tiers
// are left for the garbage collector.
func (p *Pool) Put(buf []byte) {
	switch c := cap(buf); {
	case c == 0:
		return
	case c <= p.smallSize:
		p.small.Put(buf) //nolint:staticcheck // intentional reuse of slice header
	case c <= p.largeSize:
		p.large.Put(buf) //nolint:staticcheck
	}
}
