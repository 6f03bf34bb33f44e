package secrets

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStorage(t *testing.T, dir string) *FileStorage {
	t.Helper()
	s, err := NewFileStorage(FileStorageConfig{Dir: dir, DebounceInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewFileStorage_RequiresDir(t *testing.T) {
	_, err := NewFileStorage(FileStorageConfig{})
	assert.Error(t, err)
}

func TestFileStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "secrets")
	s := newTestFileStorage(t, dir)

	_, ok, err := s.Get(ctx, "redhat-account-token")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Store(ctx, "redhat-account-token", `[{"id":"s1"}]`))

	v, ok, err := s.Get(ctx, "redhat-account-token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"id":"s1"}]`, v)

	require.NoError(t, s.Delete(ctx, "redhat-account-token"))
	_, ok, err = s.Get(ctx, "redhat-account-token")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Delete(ctx, "redhat-account-token"))
}

func TestFileStorage_Permissions(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "secrets")
	s := newTestFileStorage(t, dir)
	require.NoError(t, s.Store(ctx, "k", "v"))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	for _, name := range []string{masterKeyFile, filepath.Base(s.path("k"))} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), name)
	}
}

func TestFileStorage_ValuesAreEncrypted(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newTestFileStorage(t, dir)

	const secret = "refresh-token-value"
	require.NoError(t, s.Store(ctx, "k", secret))

	raw, err := os.ReadFile(s.path("k"))
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), secret))
}

func TestFileStorage_SharedMasterKey(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first := newTestFileStorage(t, dir)
	require.NoError(t, first.Store(ctx, "k", "v"))

	second := newTestFileStorage(t, dir)
	v, ok, err := second.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestFileStorage_TamperedFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newTestFileStorage(t, dir)
	require.NoError(t, s.Store(ctx, "k", "v"))

	raw, err := os.ReadFile(s.path("k"))
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, os.WriteFile(s.path("k"), raw, 0o600))

	_, _, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestFileStorage_FileBoundToKey(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := newTestFileStorage(t, dir)
	require.NoError(t, s.Store(ctx, "a", "v"))
	require.NoError(t, os.Rename(s.path("a"), s.path("b")))

	_, _, err := s.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestFileStorage_InvalidMasterKey(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, masterKeyFile), []byte("short"), 0o600))

	_, err := NewFileStorage(FileStorageConfig{Dir: dir})
	assert.Error(t, err)
}

func TestKeyFromPath(t *testing.T) {
	s := &FileStorage{dir: "/tmp/x"}

	key, ok := keyFromPath(s.path("redhat-account-token"))
	assert.True(t, ok)
	assert.Equal(t, "redhat-account-token", key)

	_, ok = keyFromPath("/tmp/x/master.key")
	assert.False(t, ok)
	_, ok = keyFromPath("/tmp/x/.tmp-123.secret")
	assert.False(t, ok)
}

func TestFileStorage_WatchReportsExternalChanges(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	watched := newTestFileStorage(t, dir)
	require.NoError(t, watched.Watch())
	require.NoError(t, watched.Watch())

	var calls atomic.Int32
	watched.OnDidChange(func(key string) {
		if key == "k" {
			calls.Add(1)
		}
	})

	other := newTestFileStorage(t, dir)
	require.NoError(t, other.Store(ctx, "k", "from another process"))

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	v, ok, err := watched.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "from another process", v)

	before := calls.Load()
	require.NoError(t, other.Delete(ctx, "k"))
	assert.Eventually(t, func() bool { return calls.Load() > before }, 2*time.Second, 10*time.Millisecond)
}

func TestFileStorage_CloseStopsWatcher(t *testing.T) {
	dir := t.TempDir()
	s := newTestFileStorage(t, dir)
	require.NoError(t, s.Watch())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	// Still usable after Close.
	require.NoError(t, s.Store(context.Background(), "k", "v"))
}
