// Package bufpool is the buffer pool the copy engine draws read/write
// buffers from. Its contract (New/Get/GetN/Put, InUse/InPool/Alloced) is
// reconstructed from the donor's lib/pool test suite — the pool's
// implementation file itself was not present in the retrieved snapshot,
// only its tests, so this is a from-scratch implementation built to
// satisfy that observed contract.
package bufpool

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Pool hands out same-sized byte slices and recycles them after use,
// optionally backed by an anonymous mmap instead of the Go heap so large
// buffers don't pressure the garbage collector.
type Pool struct {
	mu      sync.Mutex
	size    int
	ttl     time.Duration
	useMmap bool

	free    [][]byte
	lastUse []time.Time

	inUse   int
	inPool  int
	alloced int

	// alloc/free are overridable for testing failure paths, matching the
	// donor test's makeUnreliable helper.
	alloc func(size int) ([]byte, error)
	free_ func(b []byte) error
}

// New creates a Pool of buffers of the given size. cacheSize is accepted
// but not used: every buffer handed to Put stays on the free list. ttl is
// stored but never consulted; idle buffers are not released back to the
// allocator. useMmap backs allocations with an anonymous mmap instead of
// make([]byte, n).
func New(ttl time.Duration, size, cacheSize int, useMmap bool) *Pool {
	p := &Pool{
		size:    size,
		ttl:     ttl,
		useMmap: useMmap,
	}
	p.alloc = p.rawAlloc
	p.free_ = p.rawFree
	_ = cacheSize // cache is unbounded in practice; field kept for contract parity
	return p
}

func (p *Pool) rawAlloc(size int) ([]byte, error) {
	if p.useMmap {
		return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	}
	return make([]byte, size), nil
}

func (p *Pool) rawFree(b []byte) error {
	if p.useMmap {
		return unix.Munmap(b)
	}
	return nil
}

// Get returns a buffer of Pool's configured size, reusing a freed one
// when available.
func (p *Pool) Get() []byte {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		b := p.free[n-1]
		p.free = p.free[:n-1]
		p.lastUse = p.lastUse[:n-1]
		p.inPool--
		p.inUse++
		p.mu.Unlock()
		return b
	}
	p.mu.Unlock()

	b, err := p.alloc(p.size)
	for err != nil {
		b, err = p.alloc(p.size)
	}
	p.mu.Lock()
	p.alloced++
	p.inUse++
	p.mu.Unlock()
	return b
}

// GetN returns n buffers, each via Get.
func (p *Pool) GetN(n int) [][]byte {
	bufs := make([][]byte, n)
	for i := range bufs {
		bufs[i] = p.Get()
	}
	return bufs
}

// Put returns a buffer to the pool for reuse.
func (p *Pool) Put(b []byte) {
	p.mu.Lock()
	p.inUse--
	p.free = append(p.free, b)
	p.lastUse = append(p.lastUse, time.Now())
	p.inPool++
	p.mu.Unlock()
}

// InUse returns the number of buffers currently checked out.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// InPool returns the number of freed buffers available for reuse.
func (p *Pool) InPool() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inPool
}

// Alloced returns the total number of buffers ever allocated from the
// underlying allocator (as opposed to served from the free list).
func (p *Pool) Alloced() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alloced
}
