// Command ucp is the CLI entry point: flag parsing, signal handling, and
// the end-of-run summary, wired over the internal/* packages.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ucpio/ucp/internal/adaptive"
	"github.com/ucpio/ucp/internal/bufpool"
	"github.com/ucpio/ucp/internal/config"
	"github.com/ucpio/ucp/internal/copyengine"
	"github.com/ucpio/ucp/internal/logging"
	"github.com/ucpio/ucp/internal/ring"
	"github.com/ucpio/ucp/internal/runstop"
	"github.com/ucpio/ucp/internal/stats"
	"github.com/ucpio/ucp/internal/traversal"
)

// Exit codes per spec.md §6.
const (
	exitOK      = 0
	exitPartial = 1
	exitFatal   = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg := config.Default()
	var (
		archive      bool
		logLevel     string
		metricsAddr  string
		copyMethod   string
	)

	root := &cobra.Command{
		Use:           "ucp SRC DST",
		Short:         "ucp copies a local file tree to another local path",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			if archive {
				cfg.ApplyArchive()
			}
			cfg.ApplyACLs()
			cfg.CopyMethod = config.CopyMethod(copyMethod)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return doCopy(posArgs[0], posArgs[1], cfg, logLevel, metricsAddr)
		},
	}

	flags := root.Flags()
	// Accept underscore-spelled long flags (e.g. --buffer_size_kb) as
	// aliases for the dash-spelled ones, a pflag idiom for tolerating the
	// occasional operator habit of typing flags the flag-package way.
	flags.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	flags.BoolVarP(&archive, "archive", "a", false, "archive mode: recursive, links, perms, times, group, owner, devices")
	flags.BoolVarP(&cfg.Recursive, "recursive", "r", false, "recurse into directories")
	flags.BoolVarP(&cfg.Links, "links", "l", false, "copy symlinks as symlinks")
	flags.BoolVarP(&cfg.Perms, "perms", "p", false, "preserve permissions")
	flags.BoolVarP(&cfg.Times, "times", "t", false, "preserve modification times")
	flags.BoolVarP(&cfg.Group, "group", "g", false, "preserve group")
	flags.BoolVarP(&cfg.Owner, "owner", "o", false, "preserve owner")
	flags.BoolVarP(&cfg.Devices, "devices", "D", false, "recreate device and special files")
	flags.BoolVarP(&cfg.HardLinks, "hard-links", "H", false, "preserve hard links")
	flags.BoolVarP(&cfg.Xattrs, "xattrs", "X", false, "preserve extended attributes")
	flags.BoolVarP(&cfg.ACLs, "acls", "A", false, "preserve ACLs (implies --perms)")
	flags.BoolVarP(&cfg.OneFileSystem, "one-file-system", "x", false, "don't cross filesystem boundaries")
	flags.BoolVarP(&cfg.DryRun, "dry-run", "n", false, "show what would be copied without copying")
	flags.CountVarP(&cfg.Verbose, "verbose", "v", "increase logging verbosity (repeatable)")
	flags.BoolVar(&cfg.Atimes, "atimes", false, "preserve access times (accepted, not yet implemented)")
	flags.BoolVar(&cfg.Crtimes, "crtimes", false, "preserve creation times (accepted, not yet implemented)")

	flags.IntVar(&cfg.QueueDepth, "queue-depth", cfg.QueueDepth, "extension-layer submission queue depth")
	flags.IntVar(&cfg.MaxFilesInFlight, "max-files-in-flight", cfg.MaxFilesInFlight, "maximum concurrently in-flight files")
	flags.IntVar(&cfg.CPUCount, "cpu-count", cfg.CPUCount, "GOMAXPROCS override (0 = runtime default)")
	flags.IntVar(&cfg.BufferSizeKB, "buffer-size-kb", cfg.BufferSizeKB, "buffered-copy chunk size in KiB")
	flags.StringVar(&copyMethod, "copy-method", string(cfg.CopyMethod), "auto|read_write")
	flags.BoolVar(&cfg.NoAdaptiveConcurrency, "no-adaptive-concurrency", false, "treat fd exhaustion as fatal instead of shrinking the permit pool")
	flags.StringVar(&logLevel, "log-level", "", "trace|debug|info|warn|error (overrides -v)")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address while the run proceeds")

	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ucp:", err)
		return exitFatal
	}
	return lastExitCode
}

// lastExitCode lets RunE (which can only return an error) communicate a
// partial-failure exit code back to run without changing cobra's signature.
var lastExitCode = exitOK

func doCopy(src, dst string, cfg config.Config, logLevel, metricsAddr string) error {
	if cfg.CPUCount > 0 {
		runtime.GOMAXPROCS(cfg.CPUCount)
	}

	log := logging.New(logLevel, cfg.Verbose)
	entry := logging.ForComponent(log, "ucp")

	var reg prometheus.Registerer
	if metricsAddr != "" {
		registry := prometheus.NewRegistry()
		reg = registry
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				entry.Warnf("metrics server stopped: %v", err)
			}
		}()
		runstop.Register(func() { _ = server.Close() })
	}

	adaptive.CheckFdLimit(cfg.MaxFilesInFlight, entry)

	r, err := ring.New(cfg.QueueDepth)
	if err != nil {
		return err
	}
	runstop.Register(r.Close)

	controller := adaptive.New(cfg.MaxFilesInFlight, cfg.NoAdaptiveConcurrency, logging.ForComponent(log, "adaptive"))
	st := stats.New(reg)
	xattrs := &ring.Xattrs{}
	bufPool := bufpool.New(30*time.Second, cfg.BufferSize(), 64, false)
	ce := copyengine.New(r, xattrs, bufPool, st, &cfg, logging.ForComponent(log, "copyengine"))
	tr := traversal.New(r, ce, controller, st, &cfg, logging.ForComponent(log, "traversal"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan error, 1)
	go func() { done <- tr.Traverse(src, dst) }()

	var runErr error
	select {
	case runErr = <-done:
	case sig := <-sigCh:
		entry.Warnf("received %v, shutting down", sig)
		runstop.Fire()
		os.Exit(runstop.ExitCodeForSignal(sig))
	}
	signal.Stop(sigCh)
	runstop.Fire()

	snap := st.Snapshot()
	entry.Infof("files_discovered=%d files_copied=%d bytes_copied=%d directories=%d symlinks=%d hardlinks=%d devices=%d errors=%d",
		snap.FilesDiscovered, snap.FilesCopied, snap.BytesCopied, snap.Directories,
		snap.Symlinks, snap.Hardlinks, snap.Devices, snap.Errors)
	if controller.Adapted() {
		entry.Infof("adaptive concurrency: pool shrunk %d time(s), final max %d", controller.AdaptationCount(), controller.FinalMax())
	}

	if runErr != nil {
		lastExitCode = exitFatal
		return runErr
	}
	if snap.Errors > 0 {
		lastExitCode = exitPartial
		return nil
	}
	lastExitCode = exitOK
	return nil
}
