//go:build linux

package ring

import (
	"os"
	"strings"
	"sync/atomic"

	"github.com/pkg/xattr"
)

// xattrPrefix mirrors the donor's user.-namespace convention for
// non-system extended attributes.
const xattrPrefix = "user."

// unsupportedMemo records, for one Xattrs value, that an xattr call has
// failed as unsupported (ENOTSUP/EINVAL). It is not keyed by filesystem:
// once set, List returns no names for every handle on any filesystem.
// Get, Set, GetRaw and SetRaw do not consult it.
type unsupportedMemo struct {
	disabled atomic.Bool
}

// Xattrs is the fd-scoped xattr surface: flistxattr/fgetxattr/fsetxattr,
// adapted from the donor's path-based xattr.go to the fd-pinned TOCTOU
// discipline ucp requires — every call here goes through the already
// -open *os.File, never a path lookup performed again at metadata-apply
// time.
type Xattrs struct {
	memo unsupportedMemo
}

// List returns every user.-namespaced xattr name on h, with the prefix
// stripped, skipping names the filesystem's ACL/system namespace owns.
func (x *Xattrs) List(h *FdHandle) ([]string, error) {
	if x.memo.disabled.Load() {
		return nil, nil
	}
	f := os.NewFile(uintptr(h.Fd), h.Name)
	names, err := xattr.FList(f)
	if err != nil {
		if x.isUnsupported(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !strings.HasPrefix(n, xattrPrefix) {
			continue
		}
		out = append(out, n[len(xattrPrefix):])
	}
	return out, nil
}

// Get reads one xattr's raw value by its unprefixed name.
func (x *Xattrs) Get(h *FdHandle, name string) ([]byte, error) {
	f := os.NewFile(uintptr(h.Fd), h.Name)
	v, err := xattr.FGet(f, xattrPrefix+name)
	if err != nil && x.isUnsupported(err) {
		return nil, nil
	}
	return v, err
}

// Set writes one xattr's raw value by its unprefixed name.
func (x *Xattrs) Set(h *FdHandle, name string, value []byte) error {
	f := os.NewFile(uintptr(h.Fd), h.Name)
	err := xattr.FSet(f, xattrPrefix+name, value)
	if err != nil && x.isUnsupported(err) {
		return nil
	}
	return err
}

// ACL namespaces, per spec.md §6: ACLs ride on these two well-known
// xattr names rather than the user. prefix.
const (
	ACLAccessXattr  = "system.posix_acl_access"
	ACLDefaultXattr = "system.posix_acl_default"
)

// GetRaw/SetRaw bypass the user. prefix, for the ACL xattr names above.
func (x *Xattrs) GetRaw(h *FdHandle, rawName string) ([]byte, error) {
	f := os.NewFile(uintptr(h.Fd), h.Name)
	v, err := xattr.FGet(f, rawName)
	if err != nil && x.isUnsupported(err) {
		return nil, nil
	}
	return v, err
}

func (x *Xattrs) SetRaw(h *FdHandle, rawName string, value []byte) error {
	f := os.NewFile(uintptr(h.Fd), h.Name)
	err := xattr.FSet(f, rawName, value)
	if err != nil && x.isUnsupported(err) {
		return nil
	}
	return err
}

// isUnsupported matches the donor's ENOTSUP/ENOATTR/EINVAL classification
// and flips the memo once so subsequent calls short-circuit.
func (x *Xattrs) isUnsupported(err error) bool {
	xerr, ok := err.(*xattr.Error)
	if !ok {
		return false
	}
	switch xerr.Err {
	case xattr.ENOATTR:
		return true
	default:
	}
	if errnoUnsupported(xerr.Err) {
		x.memo.disabled.Store(true)
		return true
	}
	return false
}
