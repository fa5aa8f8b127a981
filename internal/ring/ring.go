// Package ring is the extension layer: it wraps the advanced syscalls
// the copy engine and traversal engine need (statx, openat,
// copy_file_range, fallocate, fadvise, the *at family, xattr) as
// suspendable operations whose result is a value or error, never a
// side effect on a borrowed buffer.
//
// No io_uring binding exists anywhere in the retrieved corpus (the only
// hits for "io_uring" across every example repo were gVisor's internal
// emulation, not a usable client library), so the completion ring here
// is approximated with a bounded worker pool: submitting an operation
// runs it on a pool goroutine and the caller suspends on a channel for
// the result, which preserves the "submit, then await a completion"
// discipline spec.md requires without fabricating a dependency that
// isn't in evidence anywhere in the pack. See DESIGN.md.
package ring

import (
	"github.com/panjf2000/ants/v2"
)

// Ring is the completion-queue substitute: a bounded worker pool that
// every extension-layer operation is submitted to.
type Ring struct {
	pool *ants.Pool
}

// New creates a Ring with the given queue-depth hint as its worker
// count (spec.md §3's queue_depth tunable).
func New(queueDepth int) (*Ring, error) {
	if queueDepth <= 0 {
		queueDepth = 256
	}
	pool, err := ants.NewPool(queueDepth, ants.WithNonblocking(false))
	if err != nil {
		return nil, err
	}
	return &Ring{pool: pool}, nil
}

// Close releases the worker pool. No in-flight operation is cancelled,
// and Close does not wait for running operations to finish.
func (r *Ring) Close() {
	r.pool.Release()
}

type job struct {
	fn func() (any, error)
	out chan result
}

type result struct {
	v   any
	err error
}

// submit runs fn on a pool worker and blocks the caller until it
// completes, returning fn's result. This is the ring's single
// submission/completion primitive; every typed operation below is a
// thin wrapper over it.
func (r *Ring) submit(fn func() (any, error)) (any, error) {
	out := make(chan result, 1)
	err := r.pool.Submit(func() {
		v, err := fn()
		out <- result{v, err}
	})
	if err != nil {
		return nil, err
	}
	res := <-out
	return res.v, res.err
}
