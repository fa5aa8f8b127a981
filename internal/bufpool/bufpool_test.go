package bufpool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetReturnsConfiguredSize(t *testing.T) {
	p := New(time.Minute, 4096, 8, false)
	b := p.Get()
	require.Len(t, b, 4096)
	p.Put(b)
}

func TestPutRecyclesBuffer(t *testing.T) {
	p := New(time.Minute, 1024, 8, false)
	b := p.Get()
	p.Put(b)
	assert.Equal(t, 1, p.InPool())
	assert.Equal(t, 0, p.InUse())

	b2 := p.Get()
	assert.Equal(t, 0, p.InPool())
	assert.Equal(t, 1, p.InUse())
	assert.Equal(t, 1, p.Alloced(), "a recycled buffer must not count as a new allocation")
	p.Put(b2)
}

func TestGetNReturnsDistinctBuffers(t *testing.T) {
	p := New(time.Minute, 64, 8, false)
	bufs := p.GetN(3)
	require.Len(t, bufs, 3)
	assert.Equal(t, 3, p.InUse())
	for _, b := range bufs {
		p.Put(b)
	}
	assert.Equal(t, 3, p.InPool())
}

func TestMmapBackedPoolRoundTrips(t *testing.T) {
	p := New(time.Minute, 4096, 2, true)
	b := p.Get()
	require.Len(t, b, 4096)
	b[0] = 0xAB
	p.Put(b)
	b2 := p.Get()
	assert.Equal(t, byte(0xAB), b2[0], "recycled mmap buffer should retain its last contents")
	p.Put(b2)
}
