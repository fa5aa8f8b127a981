package runstop

import (
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodeForKnownSignals(t *testing.T) {
	assert.Equal(t, 130, ExitCodeForSignal(os.Interrupt))
	assert.Equal(t, 137, ExitCodeForSignal(os.Kill))
}

func TestExitCodeForUnknownSignalIsUncategorized(t *testing.T) {
	assert.Equal(t, Uncategorized, ExitCodeForSignal(syscall.SIGUSR1))
}

func TestFireRunsHandlersInLIFOOrder(t *testing.T) {
	mu.Lock()
	handlers = nil
	mu.Unlock()

	var order []int
	Register(func() { order = append(order, 1) })
	Register(func() { order = append(order, 2) })
	Register(func() { order = append(order, 3) })

	Fire()
	assert.Equal(t, []int{3, 2, 1}, order)
}
