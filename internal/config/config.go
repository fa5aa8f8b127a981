// Package config holds the Configuration record spec.md §3 describes and
// the archive-flag aggregate expansion from §6.
package config

import (
	"fmt"

	"github.com/ucpio/ucp/internal/copyerr"
)

// CopyMethod forces a copy strategy, or leaves the copy engine to choose.
type CopyMethod string

const (
	// MethodAuto lets the copy engine pick range-copy or buffered per file.
	MethodAuto CopyMethod = "auto"
	// MethodReadWrite forces the buffered read/write path.
	MethodReadWrite CopyMethod = "read_write"
)

// Config is the Configuration record: every flag the core consults.
type Config struct {
	Recursive  bool
	Links      bool
	Perms      bool
	Times      bool
	Group      bool
	Owner      bool
	Devices    bool
	HardLinks  bool
	Xattrs     bool
	ACLs       bool
	OneFileSystem bool
	DryRun     bool
	Atimes     bool // accepted, not implemented (spec.md §9 open question)
	Crtimes    bool // accepted, not implemented (spec.md §9 open question)

	QueueDepth          int
	MaxFilesInFlight    int
	CPUCount            int
	BufferSizeKB        int
	NoAdaptiveConcurrency bool
	CopyMethod          CopyMethod

	PreallocationThresholdBytes int64
	NoReuseThresholdBytes       int64

	Verbose int // -v repeat count
}

// Default returns the Configuration record's documented defaults.
func Default() Config {
	return Config{
		QueueDepth:                  4096,
		MaxFilesInFlight:            128,
		CPUCount:                    0,
		BufferSizeKB:                1024,
		CopyMethod:                  MethodAuto,
		PreallocationThresholdBytes: 4 << 20,  // 4 MiB
		NoReuseThresholdBytes:       16 << 20, // 16 MiB
	}
}

// ApplyArchive expands -a/--archive into its constituent flags, per
// spec.md §6: recursive, links, perms, times, group, owner, devices.
func (c *Config) ApplyArchive() {
	c.Recursive = true
	c.Links = true
	c.Perms = true
	c.Times = true
	c.Group = true
	c.Owner = true
	c.Devices = true
}

// ApplyACLs implies Perms, per spec.md §3 ("acls ... implies perms").
func (c *Config) ApplyACLs() {
	if c.ACLs {
		c.Perms = true
	}
}

// BufferSize returns the buffered-copy chunk size in bytes.
func (c *Config) BufferSize() int {
	if c.BufferSizeKB <= 0 {
		return 1 << 20 // 1 MiB "device-optimal" fallback, spec.md §3
	}
	return c.BufferSizeKB * 1024
}

// Validate rejects configuration that is a caller bug rather than a
// runtime condition, per spec.md §4.G's KindInvalid.
func (c *Config) Validate() error {
	if c.MaxFilesInFlight <= 0 {
		return copyerr.Invalid("", fmt.Sprintf("max-files-in-flight must be positive, got %d", c.MaxFilesInFlight))
	}
	if c.QueueDepth <= 0 {
		return copyerr.Invalid("", fmt.Sprintf("queue-depth must be positive, got %d", c.QueueDepth))
	}
	switch c.CopyMethod {
	case MethodAuto, MethodReadWrite:
	default:
		return copyerr.Invalid("", fmt.Sprintf("unrecognized copy-method %q", c.CopyMethod))
	}
	return nil
}
