package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyArchiveSetsAllConstituentFlags(t *testing.T) {
	c := Default()
	c.ApplyArchive()
	assert.True(t, c.Recursive)
	assert.True(t, c.Links)
	assert.True(t, c.Perms)
	assert.True(t, c.Times)
	assert.True(t, c.Group)
	assert.True(t, c.Owner)
	assert.True(t, c.Devices)
	assert.False(t, c.HardLinks, "archive mode does not imply hard links")
}

func TestApplyACLsImpliesPerms(t *testing.T) {
	c := Default()
	c.ACLs = true
	c.ApplyACLs()
	assert.True(t, c.Perms)
}

func TestApplyACLsNoopWhenDisabled(t *testing.T) {
	c := Default()
	c.ApplyACLs()
	assert.False(t, c.Perms)
}

func TestBufferSizeFallsBackWhenUnset(t *testing.T) {
	c := Default()
	c.BufferSizeKB = 0
	assert.Equal(t, 1<<20, c.BufferSize())
}

func TestBufferSizeHonorsOverride(t *testing.T) {
	c := Default()
	c.BufferSizeKB = 8
	assert.Equal(t, 8*1024, c.BufferSize())
}

func TestValidateRejectsNonPositiveConcurrency(t *testing.T) {
	c := Default()
	c.MaxFilesInFlight = 0
	assert.Error(t, c.Validate())
}

func TestValidateRejectsUnknownCopyMethod(t *testing.T) {
	c := Default()
	c.CopyMethod = "carrier-pigeon"
	assert.Error(t, c.Validate())
}

func TestValidateAcceptsDefaults(t *testing.T) {
	c := Default()
	assert.NoError(t, c.Validate())
}
