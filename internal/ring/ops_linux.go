//go:build linux

package ring

import (
	"time"

	"golang.org/x/sys/unix"
)

const (
	modeTypeMask = unix.S_IFMT
	modeDir      = unix.S_IFDIR
	modeRegular  = unix.S_IFREG
	modeSymlink  = unix.S_IFLNK
	modeBlockDev = unix.S_IFBLK
	modeCharDev  = unix.S_IFCHR
	modeFifo     = unix.S_IFIFO
	modeSocket   = unix.S_IFSOCK
)

var adviceToFadv = map[Advice]int{
	AdviceNormal:     unix.FADV_NORMAL,
	AdviceSequential: unix.FADV_SEQUENTIAL,
	AdviceRandom:     unix.FADV_RANDOM,
	AdviceWillNeed:   unix.FADV_WILLNEED,
	AdviceDontNeed:   unix.FADV_DONTNEED,
	AdviceNoReuse:    unix.FADV_NOREUSE,
}

// Statx fetches canonical metadata for (dirfd, name), or for fd alone
// when name == "" (AT_EMPTY_PATH). followSymlink controls whether a
// terminal symlink is followed or reported on itself.
func (r *Ring) Statx(dirfd int, name string, followSymlink bool) (Metadata, error) {
	v, err := r.submit(func() (any, error) {
		flags := unix.AT_SYMLINK_NOFOLLOW
		if followSymlink {
			flags = 0
		}
		if name == "" {
			flags |= unix.AT_EMPTY_PATH
		}
		var stat unix.Statx_t
		mask := uint32(unix.STATX_TYPE | unix.STATX_MODE | unix.STATX_UID | unix.STATX_GID |
			unix.STATX_NLINK | unix.STATX_INO | unix.STATX_SIZE | unix.STATX_BLOCKS |
			unix.STATX_ATIME | unix.STATX_MTIME | unix.STATX_CTIME | unix.STATX_BTIME)
		if err := unix.Statx(dirfd, name, flags, int(mask), &stat); err != nil {
			return Metadata{}, err
		}
		return statxToMetadata(stat), nil
	})
	if err != nil {
		return Metadata{}, err
	}
	return v.(Metadata), nil
}

func statxToMetadata(stat unix.Statx_t) Metadata {
	toTime := func(t unix.StatxTimestamp) time.Time {
		return time.Unix(t.Sec, int64(t.Nsec))
	}
	return Metadata{
		Dev:    uint64(stat.Dev_major)<<32 | uint64(stat.Dev_minor),
		Ino:    stat.Ino,
		Nlink:  uint64(stat.Nlink),
		Mode:   uint32(stat.Mode),
		UID:    stat.Uid,
		GID:    stat.Gid,
		Size:   int64(stat.Size),
		Blocks: int64(stat.Blocks),
		Rdev:   uint64(stat.Rdev_major)<<32 | uint64(stat.Rdev_minor),
		Atime:  toTime(stat.Atime),
		Mtime:  toTime(stat.Mtime),
		Ctime:  toTime(stat.Ctime),
		Btime:  toTime(stat.Btime),
		Mask:   stat.Mask,
	}
}

// OpenAt opens (dirfd, name) and returns an owned handle. All descents
// use the parent directory's fd as dirfd, never a reconstructed path.
func (r *Ring) OpenAt(dirfd int, name string, flags int, mode uint32) (*FdHandle, error) {
	v, err := r.submit(func() (any, error) {
		fd, err := unix.Openat(dirfd, name, flags, mode)
		if err != nil {
			return nil, err
		}
		return &FdHandle{Fd: fd, Name: name}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*FdHandle), nil
}

// Close closes the handle's fd.
func (r *Ring) Close(h *FdHandle) error {
	_, err := r.submit(func() (any, error) { return nil, unix.Close(h.Fd) })
	return err
}

// ReadAt reads into buf at offset, taking ownership of buf for the
// duration of the call; buf is filled in place and the byte count is
// returned.
func (r *Ring) ReadAt(h *FdHandle, buf []byte, offset int64) (int, error) {
	v, err := r.submit(func() (any, error) {
		n, err := unix.Pread(h.Fd, buf, offset)
		return n, err
	})
	if v == nil {
		return 0, err
	}
	return v.(int), err
}

// WriteAt writes buf at offset.
func (r *Ring) WriteAt(h *FdHandle, buf []byte, offset int64) (int, error) {
	v, err := r.submit(func() (any, error) {
		n, err := unix.Pwrite(h.Fd, buf, offset)
		return n, err
	})
	if v == nil {
		return 0, err
	}
	return v.(int), err
}

// CopyFileRange copies up to length bytes from src at srcOffset to dst
// at dstOffset without a user-space round trip, returning bytes copied.
// EXDEV indicates the two files live on different filesystems.
func (r *Ring) CopyFileRange(src *FdHandle, srcOffset int64, dst *FdHandle, dstOffset int64, length int) (int, error) {
	v, err := r.submit(func() (any, error) {
		so, do := srcOffset, dstOffset
		n, err := unix.CopyFileRange(src.Fd, &so, dst.Fd, &do, length, 0)
		return n, err
	})
	if v == nil {
		return 0, err
	}
	return v.(int), err
}

// Fallocate preallocates extents for dst.
func (r *Ring) Fallocate(h *FdHandle, offset, length int64) error {
	_, err := r.submit(func() (any, error) {
		return nil, unix.Fallocate(h.Fd, unix.FALLOC_FL_KEEP_SIZE, offset, length)
	})
	return err
}

// Fadvise issues a kernel access-pattern hint.
func (r *Ring) Fadvise(h *FdHandle, offset, length int64, advice Advice) error {
	_, err := r.submit(func() (any, error) {
		return nil, unix.Fadvise(h.Fd, offset, length, adviceToFadv[advice])
	})
	return err
}

// Fsync requests durability of both data and metadata.
func (r *Ring) Fsync(h *FdHandle) error {
	_, err := r.submit(func() (any, error) { return nil, unix.Fsync(h.Fd) })
	return err
}

// Fdatasync requests durability of data only.
func (r *Ring) Fdatasync(h *FdHandle) error {
	_, err := r.submit(func() (any, error) { return nil, unix.Fdatasync(h.Fd) })
	return err
}

// ReadlinkAt reads the target of a symlink at (dirfd, name).
func (r *Ring) ReadlinkAt(dirfd int, name string) (string, error) {
	v, err := r.submit(func() (any, error) {
		buf := make([]byte, unix.PathMax)
		n, err := unix.Readlinkat(dirfd, name, buf)
		if err != nil {
			return "", err
		}
		return string(buf[:n]), nil
	})
	if v == nil {
		return "", err
	}
	return v.(string), err
}

// SymlinkAt creates a symlink at (dirfd, name) pointing to target.
func (r *Ring) SymlinkAt(target string, dirfd int, name string) error {
	_, err := r.submit(func() (any, error) { return nil, unix.Symlinkat(target, dirfd, name) })
	return err
}

// LinkAt creates a hard link from (olddirfd, oldname) to (newdirfd, newname).
func (r *Ring) LinkAt(olddirfd int, oldname string, newdirfd int, newname string) error {
	_, err := r.submit(func() (any, error) {
		return nil, unix.Linkat(olddirfd, oldname, newdirfd, newname, 0)
	})
	return err
}

// MknodAt creates a device, FIFO, or socket node at (dirfd, name).
func (r *Ring) MknodAt(dirfd int, name string, mode uint32, dev uint64) error {
	_, err := r.submit(func() (any, error) {
		return nil, unix.Mknodat(dirfd, name, mode, int(dev))
	})
	return err
}

// MkdirAt creates a directory at (dirfd, name).
func (r *Ring) MkdirAt(dirfd int, name string, mode uint32) error {
	_, err := r.submit(func() (any, error) { return nil, unix.Mkdirat(dirfd, name, mode) })
	return err
}

// UnlinkAt removes the entry at (dirfd, name).
func (r *Ring) UnlinkAt(dirfd int, name string, isDir bool) error {
	flags := 0
	if isDir {
		flags = unix.AT_REMOVEDIR
	}
	_, err := r.submit(func() (any, error) { return nil, unix.Unlinkat(dirfd, name, flags) })
	return err
}

// UtimesNanoAt sets access/modification times on (dirfd, name), without
// following a terminal symlink.
func (r *Ring) UtimesNanoAt(dirfd int, name string, atime, mtime time.Time) error {
	_, err := r.submit(func() (any, error) {
		ts := []unix.Timespec{
			unix.NsecToTimespec(atime.UnixNano()),
			unix.NsecToTimespec(mtime.UnixNano()),
		}
		return nil, unix.UtimesNanoAt(dirfd, name, ts, unix.AT_SYMLINK_NOFOLLOW)
	})
	return err
}

// Futimens sets access/modification times on the destination file h was
// opened from, addressed by (parentDirfd, h.Name) rather than the fd
// itself — Linux's utimensat takes no plain-fd form, so this still
// avoids ever reissuing a path-based lookup from scratch.
func (r *Ring) Futimens(parentDirfd int, h *FdHandle, atime, mtime time.Time) error {
	return r.UtimesNanoAt(parentDirfd, h.Name, atime, mtime)
}

// Fchmod changes the mode bits of an open fd.
func (r *Ring) Fchmod(h *FdHandle, mode uint32) error {
	_, err := r.submit(func() (any, error) { return nil, unix.Fchmod(h.Fd, mode) })
	return err
}

// Fchown changes the owner/group of an open fd.
func (r *Ring) Fchown(h *FdHandle, uid, gid int) error {
	_, err := r.submit(func() (any, error) { return nil, unix.Fchown(h.Fd, uid, gid) })
	return err
}

// FchownAt changes the owner/group of (dirfd, name) without following a
// terminal symlink, for applying ownership to symlinks themselves.
func (r *Ring) FchownAt(dirfd int, name string, uid, gid int) error {
	_, err := r.submit(func() (any, error) {
		return nil, unix.Fchownat(dirfd, name, uid, gid, unix.AT_SYMLINK_NOFOLLOW)
	})
	return err
}

