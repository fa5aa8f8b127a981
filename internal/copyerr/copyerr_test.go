package copyerr

import (
	"errors"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyNilIsNil(t *testing.T) {
	assert.Nil(t, Classify("path", nil))
}

func TestClassifyFdExhaustion(t *testing.T) {
	err := &os.PathError{Op: "open", Path: "/x", Err: syscall.EMFILE}
	c := Classify("/x", err)
	require.NotNil(t, c)
	assert.Equal(t, KindFdExhaustion, c.Kind)
	assert.True(t, IsFdExhaustion(err))
}

func TestClassifyEnfileAlsoFdExhaustion(t *testing.T) {
	err := &os.SyscallError{Syscall: "openat", Err: syscall.ENFILE}
	c := Classify("", err)
	require.NotNil(t, c)
	assert.Equal(t, KindFdExhaustion, c.Kind)
}

func TestClassifyNotFound(t *testing.T) {
	err := &os.PathError{Op: "stat", Path: "/missing", Err: syscall.ENOENT}
	c := Classify("/missing", err)
	require.NotNil(t, c)
	assert.Equal(t, KindNotFound, c.Kind)
}

func TestClassifyPermission(t *testing.T) {
	for _, errno := range []syscall.Errno{syscall.EACCES, syscall.EPERM} {
		c := Classify("", &os.PathError{Err: errno})
		require.NotNil(t, c)
		assert.Equal(t, KindPermissionDenied, c.Kind)
	}
}

func TestClassifyCrossDevice(t *testing.T) {
	c := Classify("", syscall.EXDEV)
	require.NotNil(t, c)
	assert.Equal(t, KindCrossDevice, c.Kind)
}

func TestClassifyUnsupported(t *testing.T) {
	c := Classify("", syscall.ENOTSUP)
	require.NotNil(t, c)
	assert.Equal(t, KindUnsupported, c.Kind)
}

func TestClassifyUnknownErrnoIsIO(t *testing.T) {
	c := Classify("", syscall.EIO)
	require.NotNil(t, c)
	assert.Equal(t, KindIO, c.Kind)
}

func TestClassifyPassesThroughAlreadyClassified(t *testing.T) {
	first := Classify("", syscall.EMFILE)
	second := Classify("ignored", first)
	assert.Same(t, first, second)
}

func TestErrorUnwrapAndCause(t *testing.T) {
	wrapped := errors.New("boom")
	e := &Error{Kind: KindIO, Err: wrapped}
	assert.Equal(t, wrapped, errors.Unwrap(e))
	assert.Equal(t, wrapped, e.Cause())
	assert.True(t, errors.Is(e, wrapped))
}

func TestInvalidNeverWrapsASyscall(t *testing.T) {
	e := Invalid("", "bad flag")
	assert.Equal(t, KindInvalid, e.Kind)
	assert.Equal(t, syscall.Errno(0), e.Errno)
}

func TestFatalKind(t *testing.T) {
	e := Fatal(errors.New("disk gone"))
	assert.Equal(t, KindFatal, e.Kind)
}

func TestErrorStringIncludesPathWhenSet(t *testing.T) {
	e := Classify("/a/b", syscall.ENOENT)
	assert.Contains(t, e.Error(), "/a/b")
}
