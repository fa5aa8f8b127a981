// Package adaptive implements the controller that wraps a permit pool
// and shrinks it when file-descriptor exhaustion is detected, preventing
// the copier from deadlocking the host under sustained EMFILE/ENFILE.
package adaptive

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ucpio/ucp/internal/copyerr"
	"github.com/ucpio/ucp/internal/permit"
)

// consecutiveErrorThreshold is K in spec.md §4.C: the controller only
// reacts once more than this many consecutive FD-exhaustion errors have
// been seen, to avoid over-reacting to a single blip.
const consecutiveErrorThreshold = 5

// Controller wraps a permit.Pool with the shrink-on-exhaustion policy.
type Controller struct {
	Pool *permit.Pool

	initialMax int
	floor      int
	strict     bool
	log        *logrus.Entry

	mu           sync.Mutex
	consecutive  int
	adapted      bool
	adaptedFirst bool

	adaptationCount int64
}

// New builds a Controller over a freshly created permit pool of size
// initialMax. strict mirrors the --no-adaptive-concurrency flag: when
// true, FD exhaustion is always surfaced as fatal instead of triggering
// a shrink-and-continue.
func New(initialMax int, strict bool, log *logrus.Entry) *Controller {
	floor := initialMax / 10
	if floor < 10 {
		floor = 10
	}
	if floor > initialMax {
		floor = initialMax
	}
	return &Controller{
		Pool:       permit.New(initialMax),
		initialMax: initialMax,
		floor:      floor,
		strict:     strict,
		log:        log,
	}
}

// CheckFdLimit reads the process's open-file soft limit at startup and
// warns (without failing) if it is lower than the configured permit pool
// size, per spec.md §4.C's startup check.
func CheckFdLimit(maxFilesInFlight int, log *logrus.Entry) {
	checkFdLimit(maxFilesInFlight, log)
}

// Acquire takes a permit, suspending the caller until one is free.
func (c *Controller) Acquire() *permit.Guard {
	atomic.AddInt64(&c.adaptationCount, 0) // keep adaptationCount live for race detector clarity
	return c.Pool.AcquireGuard()
}

// ObserveError classifies err and, if it is repeated FD exhaustion, may
// shrink the pool. It returns the error the caller should propagate:
// either the original error (to be handled by the caller as usual) or,
// in strict mode, the same error unchanged — strict mode only changes
// what the caller does with FdExhaustion afterwards (see Fatal below).
func (c *Controller) ObserveError(err error) *copyerr.Error {
	classified := copyerr.Classify("", err)
	if classified == nil {
		return nil
	}
	if classified.Kind != copyerr.KindFdExhaustion {
		c.mu.Lock()
		c.consecutive = 0
		c.mu.Unlock()
		return classified
	}

	c.mu.Lock()
	c.consecutive++
	consecutive := c.consecutive
	currentMax := c.Pool.Max()
	shouldShrink := consecutive > consecutiveErrorThreshold && currentMax > c.floor
	if shouldShrink {
		delta := currentMax / 4
		if delta < 10 {
			delta = 10
		}
		if currentMax-delta < c.floor {
			delta = currentMax - c.floor
		}
		c.consecutive = 0
		first := !c.adaptedFirst
		c.adaptedFirst = true
		c.adapted = true
		c.mu.Unlock()

		if delta > 0 {
			c.Pool.Reduce(delta)
			atomic.AddInt64(&c.adaptationCount, 1)
			newMax := c.Pool.Max()
			if first {
				c.log.Warnf("file descriptor exhaustion detected: shrinking concurrent-file pool from %d to %d; "+
					"consider raising the process open-file limit (ulimit -n) for full throughput", currentMax, newMax)
			} else {
				c.log.Warnf("fd exhaustion: pool shrunk to %d", newMax)
			}
		}
	} else {
		c.mu.Unlock()
	}

	return classified
}

// Fatal reports whether an error of kind k should abort the run under
// the configured strictness policy: true only for FdExhaustion in strict mode.
func (c *Controller) Fatal(k copyerr.Kind) bool {
	return c.strict && k == copyerr.KindFdExhaustion
}

// Adapted reports whether at least one shrink has happened so far.
func (c *Controller) Adapted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.adapted
}

// AdaptationCount returns how many times the pool has been shrunk.
func (c *Controller) AdaptationCount() int64 {
	return atomic.LoadInt64(&c.adaptationCount)
}

// FinalMax returns the pool's current maximum, for the end-of-run summary.
func (c *Controller) FinalMax() int {
	return c.Pool.Max()
}
