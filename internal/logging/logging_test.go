package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewDefaultsToInfoLevel(t *testing.T) {
	log := New("", 0)
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestNewVerboseCountRaisesLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, New("", 1).GetLevel())
	assert.Equal(t, logrus.TraceLevel, New("", 2).GetLevel())
}

func TestNewExplicitLevelOverridesVerboseCount(t *testing.T) {
	log := New("warn", 2)
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())
}

func TestNewFallsBackOnUnparseableLevel(t *testing.T) {
	log := New("not-a-level", 0)
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestForComponentAndForPathAddFields(t *testing.T) {
	log := New("", 0)
	entry := ForComponent(log, "copyengine")
	assert.Equal(t, "copyengine", entry.Data["component"])

	tagged := ForPath(entry, "/a/b")
	assert.Equal(t, "/a/b", tagged.Data["path"])
	assert.Equal(t, "copyengine", tagged.Data["component"])
}
