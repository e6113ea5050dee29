package bufpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPool_GetReturnsRequestedCapacityAndZeroLength(t *testing.T) {
	p := New(nil)

	small := p.Get(10)
	assert.Len(t, small, 0)
	assert.GreaterOrEqual(t, cap(small), 10)

	large := p.Get(DefaultSmallSize + 1)
	assert.GreaterOrEqual(t, cap(large), DefaultSmallSize+1)

	oversize := p.Get(DefaultLargeSize + 1)
	assert.GreaterOrEqual(t, cap(oversize), DefaultLargeSize+1)
}

func TestPool_PutThenGetStaysWithinTier(t *testing.T) {
	p := New(nil)

	buf := p.Get(8)
	buf = append(buf, 1, 2, 3)
	p.Put(buf)

	got := p.Get(8)
	assert.Len(t, got, 0)
	assert.LessOrEqual(t, cap(got), DefaultSmallSize, "an 8-byte request must stay in the small tier")
}

func TestPool_CustomConfigTierSizes(t *testing.T) {
	p := New(&Config{SmallSize: 4, LargeSize: 8})

	small := p.Get(4)
	assert.GreaterOrEqual(t, cap(small), 4)

	large := p.Get(8)
	assert.GreaterOrEqual(t, cap(large), 8)

	oversize := p.Get(9)
	assert.Equal(t, 9, cap(oversize))
}

func TestPool_PutZeroCapBufferIsIgnored(t *testing.T) {
	p := New(nil)
	// must not panic on an empty/nil buffer.
	p.Put(nil)
	p.Put([]byte{})
}
