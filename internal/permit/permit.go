// Package permit implements the counting semaphore described as the
// "Permit pool" in the copy engine's concurrency model: a bounded pool of
// permits that can be acquired, released, and — unlike
// golang.org/x/sync/semaphore.Weighted — shrunk or grown at runtime
// while tasks are waiting on it. No library in the retrieved corpus
// exposes reduce/add on a live semaphore, so this is hand-written; see
// DESIGN.md for the justification.
package permit

import "sync"

// Pool is a non-negative integer available <= max plus a FIFO queue of
// parked waiters. It is safe for concurrent use.
type Pool struct {
	mu        sync.Mutex
	available int
	max       int
	waiters   []chan struct{}
}

// New creates a pool with available == max == n.
func New(n int) *Pool {
	if n < 0 {
		n = 0
	}
	return &Pool{available: n, max: n}
}

// Acquire blocks until a permit is available, then takes it.
func (p *Pool) Acquire() {
	p.mu.Lock()
	if p.available > 0 {
		p.available--
		p.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()
	<-ch
}

// Release returns a permit to the pool and wakes one waiter, if any.
func (p *Pool) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.waiters) > 0 {
		ch := p.waiters[0]
		p.waiters = p.waiters[1:]
		close(ch)
		return
	}
	if p.available < p.max {
		p.available++
	}
}

// Reduce decrements max by n and available by min(n, available).
// Waiters already parked remain queued; they may simply wait longer.
func (p *Pool) Reduce(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n <= 0 {
		return
	}
	p.max -= n
	if p.max < 0 {
		p.max = 0
	}
	dec := n
	if dec > p.available {
		dec = p.available
	}
	p.available -= dec
}

// Add increments max and available by n, then wakes up to n waiters.
func (p *Pool) Add(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n <= 0 {
		return
	}
	p.max += n
	p.available += n
	for n > 0 && len(p.waiters) > 0 {
		ch := p.waiters[0]
		p.waiters = p.waiters[1:]
		close(ch)
		p.available--
		n--
	}
}

// Max returns the current maximum permit count.
func (p *Pool) Max() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.max
}

// Available returns the current available permit count.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

// Guard is an RAII-style permit holder: dropping it (calling Release)
// returns the permit. Forgetting a Guard to deliberately retire a permit
// is legal but unused anywhere in ucp.
type Guard struct {
	pool     *Pool
	released bool
}

// AcquireGuard blocks until a permit is free and returns a Guard owning it.
func (p *Pool) AcquireGuard() *Guard {
	p.Acquire()
	return &Guard{pool: p}
}

// Release returns the permit exactly once; subsequent calls are no-ops.
func (g *Guard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.pool.Release()
}
