// Package runstop maps OS signals to process exit codes and runs
// registered cleanup handlers on shutdown, reconstructed from the
// donor's lib/atexit test contract (only its test file was present in
// the retrieved snapshot).
package runstop

import (
	"os"
	"runtime"
	"sync"
)

// Uncategorized is returned for any signal this package doesn't know how
// to map to a POSIX-style 128+signum exit code.
const Uncategorized = 1

var (
	mu       sync.Mutex
	handlers []func()
)

// Register adds a function to be run once, in LIFO order, when Fire is
// called. Mirrors the donor's atexit.Register.
func Register(fn func()) {
	mu.Lock()
	defer mu.Unlock()
	handlers = append(handlers, fn)
}

// Fire runs every registered handler, most recently registered first.
func Fire() {
	mu.Lock()
	hs := make([]func(), len(handlers))
	copy(hs, handlers)
	mu.Unlock()

	for i := len(hs) - 1; i >= 0; i-- {
		hs[i]()
	}
}

// exitCode maps a signal to the exit code a shell would report for a
// process killed by that signal (128+signum), matching the donor's
// TestExitCode contract: SIGINT (2) -> 130, SIGKILL (9) -> 137; any
// signal this process can't categorize (or on an OS without POSIX
// signal numbers) maps to Uncategorized.
func exitCode(sig os.Signal) int {
	if runtime.GOOS == "windows" || runtime.GOOS == "plan9" {
		return Uncategorized
	}
	switch sig {
	case os.Interrupt:
		return 128 + 2
	case os.Kill:
		return 128 + 9
	default:
		return Uncategorized
	}
}

// ExitCodeForSignal is the exported form of exitCode used by main to
// decide its os.Exit argument when a signal interrupts a run.
func ExitCodeForSignal(sig os.Signal) int {
	return exitCode(sig)
}
