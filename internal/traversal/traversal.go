// Package traversal is the traversal engine (spec.md §4.E): recursive
// directory walk with per-entry classification, hardlink tracking,
// filesystem-boundary enforcement, and fan-out into permit-bounded
// concurrent tasks joined at the end of each directory's scope.
package traversal

import (
	"os"
	"path"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/ucpio/ucp/internal/adaptive"
	"github.com/ucpio/ucp/internal/config"
	"github.com/ucpio/ucp/internal/copyengine"
	"github.com/ucpio/ucp/internal/copyerr"
	"github.com/ucpio/ucp/internal/hardlink"
	"github.com/ucpio/ucp/internal/ring"
	"github.com/ucpio/ucp/internal/stats"
)

// Engine is the traversal entry point.
type Engine struct {
	ring       *ring.Ring
	copyEngine *copyengine.Engine
	controller *adaptive.Controller
	hardlinks  *hardlink.Table
	stats      *stats.Stats
	cfg        *config.Config
	log        *logrus.Entry

	rootDevice uint64
	dstRootFd  int
}

// New builds a traversal Engine.
func New(r *ring.Ring, ce *copyengine.Engine, c *adaptive.Controller, st *stats.Stats, cfg *config.Config, log *logrus.Entry) *Engine {
	return &Engine{
		ring:       r,
		copyEngine: ce,
		controller: c,
		hardlinks:  hardlink.New(),
		stats:      st,
		cfg:        cfg,
		log:        log,
	}
}

// Traverse copies srcRoot onto dstRoot, implementing spec.md §4.E.
// All spawned tasks are joined before it returns, guaranteeing the
// hardlink table is consistent at that point.
func (e *Engine) Traverse(srcRoot, dstRoot string) error {
	srcRootHandle, err := e.ring.OpenAt(unix.AT_FDCWD, srcRoot, unix.O_RDONLY|unix.O_DIRECTORY, 0)
	if err != nil {
		return copyerr.Fatal(err)
	}
	defer e.ring.Close(srcRootHandle)

	rootMeta, err := e.ring.Statx(srcRootHandle.Fd, "", false)
	if err != nil {
		return copyerr.Fatal(err)
	}
	e.rootDevice = rootMeta.Dev

	// Under --dry-run the destination root is neither created nor opened;
	// no dry-run path reads the destination fd.
	e.dstRootFd = -1
	if !e.cfg.DryRun {
		if err := e.ring.MkdirAt(unix.AT_FDCWD, dstRoot, 0o755); err != nil && !isEExist(err) {
			return copyerr.Fatal(err)
		}
		dstRootHandle, err := e.ring.OpenAt(unix.AT_FDCWD, dstRoot, unix.O_RDONLY|unix.O_DIRECTORY, 0)
		if err != nil {
			return copyerr.Fatal(err)
		}
		defer e.ring.Close(dstRootHandle)
		e.dstRootFd = dstRootHandle.Fd
	}

	if err := e.traverseDir(srcRootHandle.Fd, e.dstRootFd, ""); err != nil {
		return err
	}

	if e.cfg.Times && !e.cfg.DryRun {
		_ = e.ring.Futimens(unix.AT_FDCWD, &ring.FdHandle{Fd: e.dstRootFd, Name: dstRoot}, rootMeta.Atime, rootMeta.Mtime)
	}
	return nil
}

// traverseDir reads one directory's entries and fans each out into a
// permit-bounded task, joining them all before returning.
func (e *Engine) traverseDir(srcDirfd, dstDirfd int, relPath string) error {
	names, err := e.readdirnames(srcDirfd, relPath)
	if err != nil {
		return copyerr.Classify(relPath, err)
	}

	g := new(errgroup.Group)
	for _, name := range names {
		name := name
		guard := e.controller.Acquire()
		e.stats.EnterFlight()
		g.Go(func() error {
			defer func() {
				guard.Release()
				e.stats.LeaveFlight()
			}()
			return e.handleEntry(srcDirfd, dstDirfd, relPath, name)
		})
	}
	return g.Wait()
}

// readdirnames lists a directory's entries via a duplicated fd, leaving
// the caller's directory fd (srcDirfd) open for the statx/openat calls
// each entry still needs.
func (e *Engine) readdirnames(srcDirfd int, relPath string) ([]string, error) {
	dupFd, err := unix.Dup(srcDirfd)
	if err != nil {
		return nil, err
	}
	dirFile := os.NewFile(uintptr(dupFd), relPath)
	defer dirFile.Close()
	return dirFile.Readdirnames(-1)
}

// handleEntry statxes, classifies and dispatches one directory entry.
func (e *Engine) handleEntry(srcDirfd, dstDirfd int, relPath, name string) error {
	childPath := path.Join(relPath, name)

	meta, err := e.ring.Statx(srcDirfd, name, false)
	if err != nil {
		return e.reportOrAbort(childPath, err)
	}
	e.stats.DiscoveredFile()

	if e.cfg.OneFileSystem && meta.Dev != e.rootDevice {
		e.log.WithField("path", childPath).Debugf("skipping: crosses filesystem boundary")
		return nil
	}

	switch {
	case meta.IsDir():
		return e.handleDirectory(srcDirfd, dstDirfd, relPath, name, meta)
	case meta.IsRegular():
		return e.handleRegular(srcDirfd, dstDirfd, childPath, name, meta)
	case meta.IsSymlink():
		return e.handleSymlink(srcDirfd, dstDirfd, childPath, name, meta)
	case meta.IsDevice() || meta.IsFifoOrSocket():
		return e.handleDevice(dstDirfd, childPath, name, meta)
	default:
		e.log.WithField("path", childPath).Debugf("unrecognized entry type, skipping")
		return nil
	}
}

func (e *Engine) handleDirectory(srcDirfd, dstDirfd int, relPath, name string, meta ring.Metadata) error {
	childPath := path.Join(relPath, name)

	if !e.cfg.DryRun {
		if err := e.ring.MkdirAt(dstDirfd, name, 0o755); err != nil && !isEExist(err) {
			return e.reportOrAbort(childPath, err)
		}
	}
	e.stats.CreatedDirectory()

	srcChild, err := e.ring.OpenAt(srcDirfd, name, unix.O_RDONLY|unix.O_DIRECTORY, 0)
	if err != nil {
		return e.reportOrAbort(childPath, err)
	}
	defer e.ring.Close(srcChild)

	if e.cfg.DryRun {
		// Nothing was actually created at the destination; still walk the
		// source so classification and logging run for every entry.
		return e.traverseDirDryRun(srcChild.Fd, childPath)
	}

	dstChild, err := e.ring.OpenAt(dstDirfd, name, unix.O_RDONLY|unix.O_DIRECTORY, 0)
	if err != nil {
		return e.reportOrAbort(childPath, err)
	}
	defer e.ring.Close(dstChild)

	err = e.traverseDir(srcChild.Fd, dstChild.Fd, childPath)

	// Ownership/mode are applied any time; times must be last because
	// writing into a directory (its own contents) updates its mtime.
	if e.cfg.Owner || e.cfg.Group {
		_ = e.ring.Fchown(dstChild, int(meta.UID), int(meta.GID))
	}
	if e.cfg.Perms {
		_ = e.ring.Fchmod(dstChild, meta.Mode&0o7777)
	}
	if e.cfg.Times {
		_ = e.ring.Futimens(dstDirfd, dstChild, meta.Atime, meta.Mtime)
	}
	return err
}

// traverseDirDryRun mirrors traverseDir's fan-out but never touches a
// destination fd, since under --dry-run none exists.
func (e *Engine) traverseDirDryRun(srcDirfd int, relPath string) error {
	names, err := e.readdirnames(srcDirfd, relPath)
	if err != nil {
		return copyerr.Classify(relPath, err)
	}
	g := new(errgroup.Group)
	for _, name := range names {
		name := name
		guard := e.controller.Acquire()
		e.stats.EnterFlight()
		g.Go(func() error {
			defer func() {
				guard.Release()
				e.stats.LeaveFlight()
			}()
			childPath := path.Join(relPath, name)
			meta, err := e.ring.Statx(srcDirfd, name, false)
			if err != nil {
				return e.reportOrAbort(childPath, err)
			}
			e.stats.DiscoveredFile()
			if meta.IsDir() {
				e.stats.CreatedDirectory()
				child, err := e.ring.OpenAt(srcDirfd, name, unix.O_RDONLY|unix.O_DIRECTORY, 0)
				if err != nil {
					return e.reportOrAbort(childPath, err)
				}
				defer e.ring.Close(child)
				return e.traverseDirDryRun(child.Fd, childPath)
			}
			if meta.IsRegular() {
				e.stats.CopiedFile(0)
			}
			return nil
		})
	}
	return g.Wait()
}

func (e *Engine) handleRegular(srcDirfd, dstDirfd int, childPath, name string, meta ring.Metadata) error {
	if e.cfg.HardLinks && meta.Nlink > 1 {
		key := hardlink.Key{Dev: meta.Dev, Ino: meta.Ino}
		if existing, found := e.hardlinks.LookupOrInsert(key, childPath); found {
			if e.cfg.DryRun {
				e.stats.CreatedHardlink()
				return nil
			}
			if err := e.ring.LinkAt(e.dstRootFd, existing, dstDirfd, name); err != nil {
				return e.reportOrAbort(childPath, err)
			}
			e.stats.CreatedHardlink()
			return nil
		}
	}

	if err := e.copyEngine.Copy(srcDirfd, name, dstDirfd, name); err != nil {
		return e.reportOrAbort(childPath, err)
	}
	return nil
}

func (e *Engine) handleSymlink(srcDirfd, dstDirfd int, childPath, name string, meta ring.Metadata) error {
	target, err := e.ring.ReadlinkAt(srcDirfd, name)
	if err != nil {
		return e.reportOrAbort(childPath, err)
	}
	if !e.cfg.DryRun {
		if err := e.ring.SymlinkAt(target, dstDirfd, name); err != nil {
			return e.reportOrAbort(childPath, err)
		}
		if e.cfg.Owner || e.cfg.Group {
			_ = e.ring.FchownAt(dstDirfd, name, int(meta.UID), int(meta.GID))
		}
		if e.cfg.Times {
			_ = e.ring.UtimesNanoAt(dstDirfd, name, meta.Atime, meta.Mtime)
		}
	}
	e.stats.CreatedSymlink()
	return nil
}

func (e *Engine) handleDevice(dstDirfd int, childPath, name string, meta ring.Metadata) error {
	if !e.cfg.Devices {
		e.log.WithField("path", childPath).Debugf("skipping device node: --devices not set")
		return nil
	}
	if !e.cfg.DryRun {
		if err := e.ring.MknodAt(dstDirfd, name, meta.Mode, meta.Rdev); err != nil {
			return e.reportOrAbort(childPath, err)
		}
	}
	e.stats.CreatedDevice()
	return nil
}

// reportOrAbort classifies err through the adaptive controller. If the
// controller's strictness policy says this class of error is fatal, it
// returns the classified error (aborting the run via errgroup); otherwise
// it logs, counts, and returns nil so the sibling fan-out continues.
func (e *Engine) reportOrAbort(path string, err error) error {
	classified := e.controller.ObserveError(err)
	if classified == nil {
		return nil
	}
	if e.controller.Fatal(classified.Kind) {
		return classified
	}
	e.log.WithField("path", path).Warnf("%s: %v", classified.Kind, classified.Err)
	e.stats.Error()
	return nil
}

func isEExist(err error) bool {
	errno, ok := err.(syscall.Errno)
	return ok && errno == syscall.EEXIST
}
