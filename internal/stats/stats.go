// Package stats is the monotonic-counter statistics sink: atomic
// counters for files, bytes and errors, plus the one non-monotonic gauge
// (files in flight). Counters double as Prometheus metrics so a run can
// optionally be scraped while in progress — the donor repo carries
// prometheus/client_golang as a direct dependency without ever wiring
// it into backend/local, so this is where that dependency earns its
// keep in ucp.
package stats

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats holds every counter spec.md §4.F names.
type Stats struct {
	filesDiscovered  atomic.Int64
	filesCopied      atomic.Int64
	bytesCopied      atomic.Int64
	directories      atomic.Int64
	symlinks         atomic.Int64
	hardlinks        atomic.Int64
	devices          atomic.Int64
	errors           atomic.Int64
	filesInFlight    atomic.Int64

	promFilesDiscovered prometheus.Counter
	promFilesCopied     prometheus.Counter
	promBytesCopied     prometheus.Counter
	promDirectories     prometheus.Counter
	promSymlinks        prometheus.Counter
	promHardlinks       prometheus.Counter
	promDevices         prometheus.Counter
	promErrors          prometheus.Counter
	promFilesInFlight   prometheus.Gauge
}

// New creates a Stats and, if reg is non-nil, registers its metrics
// under it (the CLI passes a registry only when --metrics-addr is set).
func New(reg prometheus.Registerer) *Stats {
	s := &Stats{
		promFilesDiscovered: prometheus.NewCounter(prometheus.CounterOpts{Name: "ucp_files_discovered_total"}),
		promFilesCopied:     prometheus.NewCounter(prometheus.CounterOpts{Name: "ucp_files_copied_total"}),
		promBytesCopied:     prometheus.NewCounter(prometheus.CounterOpts{Name: "ucp_bytes_copied_total"}),
		promDirectories:     prometheus.NewCounter(prometheus.CounterOpts{Name: "ucp_directories_created_total"}),
		promSymlinks:        prometheus.NewCounter(prometheus.CounterOpts{Name: "ucp_symlinks_created_total"}),
		promHardlinks:       prometheus.NewCounter(prometheus.CounterOpts{Name: "ucp_hardlinks_created_total"}),
		promDevices:         prometheus.NewCounter(prometheus.CounterOpts{Name: "ucp_devices_created_total"}),
		promErrors:          prometheus.NewCounter(prometheus.CounterOpts{Name: "ucp_errors_total"}),
		promFilesInFlight:   prometheus.NewGauge(prometheus.GaugeOpts{Name: "ucp_files_in_flight"}),
	}
	if reg != nil {
		reg.MustRegister(
			s.promFilesDiscovered, s.promFilesCopied, s.promBytesCopied,
			s.promDirectories, s.promSymlinks, s.promHardlinks,
			s.promDevices, s.promErrors, s.promFilesInFlight,
		)
	}
	return s
}

// DiscoveredFile increments files-discovered.
func (s *Stats) DiscoveredFile() { s.filesDiscovered.Add(1); s.promFilesDiscovered.Inc() }

// CopiedFile increments files-copied and bytes-copied.
func (s *Stats) CopiedFile(bytes int64) {
	s.filesCopied.Add(1)
	s.promFilesCopied.Inc()
	s.bytesCopied.Add(bytes)
	s.promBytesCopied.Add(float64(bytes))
}

// CreatedDirectory increments directories-created.
func (s *Stats) CreatedDirectory() { s.directories.Add(1); s.promDirectories.Inc() }

// CreatedSymlink increments symlinks-created.
func (s *Stats) CreatedSymlink() { s.symlinks.Add(1); s.promSymlinks.Inc() }

// CreatedHardlink increments hardlinks-created.
func (s *Stats) CreatedHardlink() { s.hardlinks.Add(1); s.promHardlinks.Inc() }

// CreatedDevice increments devices-created.
func (s *Stats) CreatedDevice() { s.devices.Add(1); s.promDevices.Inc() }

// Error increments the error counter.
func (s *Stats) Error() { s.errors.Add(1); s.promErrors.Inc() }

// EnterFlight increments the in-flight gauge on permit acquire.
func (s *Stats) EnterFlight() { s.filesInFlight.Add(1); s.promFilesInFlight.Inc() }

// LeaveFlight decrements the in-flight gauge on permit release.
func (s *Stats) LeaveFlight() { s.filesInFlight.Add(-1); s.promFilesInFlight.Dec() }

// Snapshot is a read-only, field-inconsistent-by-design copy of every
// counter, taken by atomic loads with no locking (spec.md §4.F).
type Snapshot struct {
	FilesDiscovered int64
	FilesCopied     int64
	BytesCopied     int64
	Directories     int64
	Symlinks        int64
	Hardlinks       int64
	Devices         int64
	Errors          int64
	FilesInFlight   int64
}

// Snapshot takes a point-in-time read of every counter.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		FilesDiscovered: s.filesDiscovered.Load(),
		FilesCopied:     s.filesCopied.Load(),
		BytesCopied:     s.bytesCopied.Load(),
		Directories:     s.directories.Load(),
		Symlinks:        s.symlinks.Load(),
		Hardlinks:       s.hardlinks.Load(),
		Devices:         s.devices.Load(),
		Errors:          s.errors.Load(),
		FilesInFlight:   s.filesInFlight.Load(),
	}
}
