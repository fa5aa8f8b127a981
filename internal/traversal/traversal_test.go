package traversal

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/ucpio/ucp/internal/adaptive"
	"github.com/ucpio/ucp/internal/bufpool"
	"github.com/ucpio/ucp/internal/config"
	"github.com/ucpio/ucp/internal/copyengine"
	"github.com/ucpio/ucp/internal/ring"
	"github.com/ucpio/ucp/internal/stats"
)

func newTestEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	r, err := ring.New(16)
	require.NoError(t, err)
	t.Cleanup(r.Close)

	log := logrus.New()
	log.SetOutput(io.Discard)
	entry := logrus.NewEntry(log)

	bp := bufpool.New(time.Minute, 64<<10, 4, false)
	st := stats.New(nil)
	xattrs := &ring.Xattrs{}
	ce := copyengine.New(r, xattrs, bp, st, cfg, entry)
	controller := adaptive.New(32, cfg.NoAdaptiveConcurrency, entry)
	return New(r, ce, controller, st, cfg, entry)
}

func TestTraverseBasicTree(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "dst")

	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "root.txt"), []byte("root"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "nested.txt"), []byte("nested"), 0o644))

	cfg := config.Default()
	cfg.Perms = true
	cfg.Times = true
	e := newTestEngine(t, &cfg)

	require.NoError(t, e.Traverse(src, dst))

	got, err := os.ReadFile(filepath.Join(dst, "root.txt"))
	require.NoError(t, err)
	require.Equal(t, "root", string(got))

	got, err = os.ReadFile(filepath.Join(dst, "sub", "nested.txt"))
	require.NoError(t, err)
	require.Equal(t, "nested", string(got))

	snap := e.stats.Snapshot()
	require.EqualValues(t, 2, snap.FilesCopied)
	require.GreaterOrEqual(t, snap.Directories, int64(1))
}

func TestTraverseSymlinkIsRecreatedNotFollowed(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "dst")

	require.NoError(t, os.WriteFile(filepath.Join(src, "target.txt"), []byte("payload"), 0o644))
	require.NoError(t, os.Symlink("target.txt", filepath.Join(src, "link.txt")))

	cfg := config.Default()
	cfg.Links = true
	cfg.Times = true
	e := newTestEngine(t, &cfg)
	require.NoError(t, e.Traverse(src, dst))

	fi, err := os.Lstat(filepath.Join(dst, "link.txt"))
	require.NoError(t, err)
	require.True(t, fi.Mode()&os.ModeSymlink != 0, "destination entry should still be a symlink")

	target, err := os.Readlink(filepath.Join(dst, "link.txt"))
	require.NoError(t, err)
	require.Equal(t, "target.txt", target)

	snap := e.stats.Snapshot()
	require.EqualValues(t, 1, snap.Symlinks)
}

func TestTraverseHardlinksShareInode(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "dst")

	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("shared"), 0o644))
	require.NoError(t, os.Link(filepath.Join(src, "a.txt"), filepath.Join(src, "b.txt")))

	cfg := config.Default()
	cfg.HardLinks = true
	e := newTestEngine(t, &cfg)
	require.NoError(t, e.Traverse(src, dst))

	infoA, err := os.Stat(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	infoB, err := os.Stat(filepath.Join(dst, "b.txt"))
	require.NoError(t, err)
	require.True(t, os.SameFile(infoA, infoB), "hard-linked sources should stay hard-linked at the destination")

	snap := e.stats.Snapshot()
	require.EqualValues(t, 1, snap.Hardlinks)
}

func TestTraverseDryRunCreatesNothing(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "dst")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "a.txt"), []byte("x"), 0o644))

	cfg := config.Default()
	cfg.DryRun = true
	e := newTestEngine(t, &cfg)
	require.NoError(t, e.Traverse(src, dst))

	_, err := os.Stat(filepath.Join(dst, "sub", "a.txt"))
	require.True(t, os.IsNotExist(err))

	snap := e.stats.Snapshot()
	require.EqualValues(t, 2, snap.FilesDiscovered) // sub dir + a.txt
	require.EqualValues(t, 1, snap.FilesCopied)      // counted for a.txt despite no bytes moved
}

func TestTraverseOneFileSystemDoesNotErrorOnSingleMount(t *testing.T) {
	// A real cross-mount boundary can't be constructed in a unit test
	// without root; this confirms the flag is inert (no false skip) on a
	// tree entirely within one filesystem.
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "dst")
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("x"), 0o644))

	cfg := config.Default()
	cfg.OneFileSystem = true
	e := newTestEngine(t, &cfg)
	require.NoError(t, e.Traverse(src, dst))

	_, err := os.Stat(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
}
