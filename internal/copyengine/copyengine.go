// Package copyengine is the per-file copy engine (spec.md §4.D): method
// selection between zero-copy range-copy and buffered read/write,
// preallocation, cache-bypass hints, and the fixed metadata
// application order, all performed through fd-pinned extension-layer
// operations.
package copyengine

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ucpio/ucp/internal/bufpool"
	"github.com/ucpio/ucp/internal/config"
	"github.com/ucpio/ucp/internal/copyerr"
	"github.com/ucpio/ucp/internal/ring"
	"github.com/ucpio/ucp/internal/stats"
)

// method is the chosen copy strategy for one file.
type method int

const (
	methodRangeCopy method = iota
	methodBuffered
)

// plan is the per-file Copy plan spec.md §3 describes.
type plan struct {
	method      method
	preallocate bool
	noReuse     bool
	bufferSize  int
}

// Engine executes copy() for one file at a time; it is safe to call Copy
// concurrently from multiple goroutines, each against its own files.
type Engine struct {
	ring    *ring.Ring
	xattrs  *ring.Xattrs
	bufPool *bufpool.Pool
	stats   *stats.Stats
	cfg     *config.Config
	log     *logrus.Entry

	unsupportedMu sync.Mutex
	unsupported   map[uint64]map[string]bool // device -> feature -> logged
}

// New builds a copy Engine.
func New(r *ring.Ring, xa *ring.Xattrs, bp *bufpool.Pool, st *stats.Stats, cfg *config.Config, log *logrus.Entry) *Engine {
	return &Engine{
		ring:        r,
		xattrs:      xa,
		bufPool:     bp,
		stats:       st,
		cfg:         cfg,
		log:         log,
		unsupported: make(map[uint64]map[string]bool),
	}
}

// Copy copies srcName (a child of srcDirfd) to dstName (a child of
// dstDirfd), implementing spec.md §4.D's eight-step algorithm. Copy
// takes no metadata from the caller: it opens the source and statx-es
// the already-open fd (never the path) for its size, device and
// metadata, per the fd-pinned TOCTOU discipline.
func (e *Engine) Copy(srcDirfd int, srcName string, dstDirfd int, dstName string) error {
	if e.cfg.DryRun {
		e.log.Debugf("dry-run: would copy %s -> %s", srcName, dstName)
		e.stats.CopiedFile(0)
		return nil
	}

	src, err := e.ring.OpenAt(srcDirfd, srcName, unix.O_RDONLY|unix.O_NOFOLLOW, 0)
	if err != nil {
		return copyerr.Classify(srcName, err)
	}
	defer e.ring.Close(src)

	srcMeta, err := e.ring.Statx(src.Fd, "", false)
	if err != nil {
		return copyerr.Classify(srcName, err)
	}

	dst, err := e.ring.OpenAt(dstDirfd, dstName, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC, 0o600)
	if err != nil {
		return copyerr.Classify(dstName, err)
	}
	closeDst := true
	defer func() {
		if closeDst {
			e.ring.Close(dst)
		}
	}()

	dstMeta, err := e.ring.Statx(dst.Fd, "", false)
	if err != nil {
		return copyerr.Classify(dstName, err)
	}

	p := e.computePlan(srcMeta, dstMeta)

	if p.preallocate {
		if err := e.ring.Fallocate(dst, 0, srcMeta.Size); err != nil {
			e.logUnsupportedOnce(dstMeta.Dev, "fallocate", err)
		}
	}
	if p.noReuse {
		_ = e.ring.Fadvise(src, 0, srcMeta.Size, ring.AdviceNoReuse)
		_ = e.ring.Fadvise(dst, 0, srcMeta.Size, ring.AdviceNoReuse)
	}

	bytesCopied, err := e.execute(p, src, dst, srcMeta.Size)
	if err != nil {
		return copyerr.Classify(srcName, err)
	}

	if err := e.applyMetadata(dstDirfd, src, dst, srcMeta); err != nil {
		e.log.WithField("path", dstName).Warnf("metadata apply failed: %v", err)
		e.stats.Error()
	}

	closeDst = false
	if err := e.ring.Close(dst); err != nil {
		return copyerr.Classify(dstName, err)
	}

	e.stats.CopiedFile(bytesCopied)
	return nil
}

// computePlan derives the Copy plan from entry metadata and configuration.
func (e *Engine) computePlan(src, dst ring.Metadata) plan {
	p := plan{bufferSize: e.cfg.BufferSize()}
	switch e.cfg.CopyMethod {
	case config.MethodReadWrite:
		p.method = methodBuffered
	default:
		if src.Dev == dst.Dev {
			p.method = methodRangeCopy
		} else {
			p.method = methodBuffered
		}
	}
	if src.Size > e.cfg.PreallocationThresholdBytes {
		p.preallocate = true
	}
	if src.Size > e.cfg.NoReuseThresholdBytes {
		p.noReuse = true
	}
	return p
}

// execute runs the chosen plan to completion, returning total bytes copied.
func (e *Engine) execute(p plan, src, dst *ring.FdHandle, size int64) (int64, error) {
	if p.method == methodRangeCopy {
		n, err := e.rangeCopy(src, dst, size)
		if err == unix.EXDEV {
			// Downgrade to buffered starting from the current offset.
			remaining := size - n
			m, err2 := e.bufferedCopy(src, dst, n, remaining)
			return n + m, err2
		}
		return n, err
	}
	return e.bufferedCopy(src, dst, 0, size)
}

// rangeCopy loops copy_file_range until remaining == 0, EOF (0 return),
// EXDEV (caller downgrades), or any other error (propagated).
func (e *Engine) rangeCopy(src, dst *ring.FdHandle, size int64) (int64, error) {
	var off int64
	remaining := size
	for remaining > 0 {
		n, err := e.ring.CopyFileRange(src, off, dst, off, int(remaining))
		if err != nil {
			return off, err
		}
		if n == 0 {
			break // EOF
		}
		off += int64(n)
		remaining -= int64(n)
	}
	return off, nil
}

// bufferedCopy loops read_at/write_at, handling short writes by
// resubmitting the tail, reusing one pooled buffer across iterations.
func (e *Engine) bufferedCopy(src, dst *ring.FdHandle, startOffset, remaining int64) (int64, error) {
	buf := e.bufPool.Get()
	defer e.bufPool.Put(buf)

	var copied int64
	offset := startOffset
	for remaining > 0 {
		toRead := len(buf)
		if int64(toRead) > remaining {
			toRead = int(remaining)
		}
		n, err := e.ring.ReadAt(src, buf[:toRead], offset)
		if err != nil {
			return copied, err
		}
		if n == 0 {
			break // EOF
		}
		if err := e.writeAll(dst, buf[:n], offset); err != nil {
			return copied, err
		}
		offset += int64(n)
		copied += int64(n)
		remaining -= int64(n)
	}
	return copied, nil
}

// writeAll resubmits the unwritten tail of buf until every byte lands.
func (e *Engine) writeAll(dst *ring.FdHandle, buf []byte, offset int64) error {
	written := 0
	for written < len(buf) {
		n, err := e.ring.WriteAt(dst, buf[written:], offset+int64(written))
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("write_at returned 0 with %d bytes remaining", len(buf)-written)
		}
		written += n
	}
	return nil
}

// applyMetadata performs the fixed metadata order from
// spec.md §4.D.6: xattrs (ACLs included), then ownership, then mode, then times. Each
// step's failure is logged and counted but does not invalidate the
// file's content. dstDirfd is the destination's parent directory fd,
// needed because utimensat addresses the file by (dirfd, name).
func (e *Engine) applyMetadata(dstDirfd int, src, dst *ring.FdHandle, srcMeta ring.Metadata) error {
	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if e.cfg.Xattrs || e.cfg.ACLs {
		note(e.copyXattrs(src, dst, srcMeta.Dev))
	}
	if e.cfg.Owner || e.cfg.Group {
		note(e.ring.Fchown(dst, int(srcMeta.UID), int(srcMeta.GID)))
	}
	if e.cfg.Perms {
		note(e.ring.Fchmod(dst, srcMeta.Mode&0o7777))
	}
	if e.cfg.Times {
		note(e.ring.Futimens(dstDirfd, dst, srcMeta.Atime, srcMeta.Mtime))
	}
	return firstErr
}

func (e *Engine) copyXattrs(src, dst *ring.FdHandle, dstDev uint64) error {
	names, err := e.xattrs.List(src)
	if err != nil {
		e.logUnsupportedOnce(dstDev, "xattr", err)
		return nil
	}
	for _, name := range names {
		v, err := e.xattrs.Get(src, name)
		if err != nil {
			e.logUnsupportedOnce(dstDev, "xattr", err)
			continue
		}
		if err := e.xattrs.Set(dst, name, v); err != nil {
			e.logUnsupportedOnce(dstDev, "xattr", err)
		}
	}
	if e.cfg.ACLs {
		for _, acl := range []string{ring.ACLAccessXattr, ring.ACLDefaultXattr} {
			v, err := e.xattrs.GetRaw(src, acl)
			if err != nil || v == nil {
				continue
			}
			if err := e.xattrs.SetRaw(dst, acl, v); err != nil {
				e.logUnsupportedOnce(dstDev, "acl", err)
			}
		}
	}
	return nil
}

// logUnsupportedOnce implements the "log once per filesystem" rule from
// spec.md §4.G for ENOTSUP-classified errors.
func (e *Engine) logUnsupportedOnce(dev uint64, feature string, err error) {
	e.unsupportedMu.Lock()
	defer e.unsupportedMu.Unlock()
	if e.unsupported[dev] == nil {
		e.unsupported[dev] = make(map[string]bool)
	}
	if e.unsupported[dev][feature] {
		return
	}
	e.unsupported[dev][feature] = true
	e.log.Warnf("%s unsupported on filesystem (dev=%x): %v", feature, dev, err)
}
