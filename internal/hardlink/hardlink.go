// Package hardlink is the (device, inode) -> first-destination-path
// table spec.md §3 describes: consulted before any candidate regular
// file is opened so repeat inodes become hard links at the destination
// instead of fresh copies.
package hardlink

import "sync"

// Key identifies a filesystem object for the duration of one run.
type Key struct {
	Dev, Ino uint64
}

// Table maps a Key to the first destination path (relative to the
// destination root, as the traversal engine passes it to linkat) at which
// that inode was materialized.
// Lifetime is one run; a single mutex serializes the one-hashmap-op
// critical section spec.md §3 calls for.
type Table struct {
	mu   sync.Mutex
	seen map[Key]string
}

// New creates an empty table.
func New() *Table {
	return &Table{seen: make(map[Key]string)}
}

// LookupOrInsert returns (path, true) if key was already seen, else
// records dstPath under key and returns ("", false). This is the single
// insert-if-absent-and-lookup critical section the table exposes.
func (t *Table) LookupOrInsert(key Key, dstPath string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.seen[key]; ok {
		return existing, true
	}
	t.seen[key] = dstPath
	return "", false
}
