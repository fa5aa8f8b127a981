//go:build linux

package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadataTypeClassification(t *testing.T) {
	cases := []struct {
		name string
		mode uint32
		is   func(Metadata) bool
	}{
		{"dir", modeDir, Metadata.IsDir},
		{"regular", modeRegular, Metadata.IsRegular},
		{"symlink", modeSymlink, Metadata.IsSymlink},
		{"blockdev", modeBlockDev, Metadata.IsDevice},
		{"chardev", modeCharDev, Metadata.IsDevice},
		{"fifo", modeFifo, Metadata.IsFifoOrSocket},
		{"socket", modeSocket, Metadata.IsFifoOrSocket},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			m := Metadata{Mode: c.mode | 0o644}
			assert.True(t, c.is(m))
		})
	}
}

func TestMetadataClassificationsAreMutuallyExclusive(t *testing.T) {
	m := Metadata{Mode: modeRegular | 0o644}
	assert.True(t, m.IsRegular())
	assert.False(t, m.IsDir())
	assert.False(t, m.IsSymlink())
	assert.False(t, m.IsDevice())
	assert.False(t, m.IsFifoOrSocket())
}
