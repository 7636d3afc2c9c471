package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	data := []byte("har trace for vary run 01")
	hash, err := store.Store(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, HashOf(data), hash)
	assert.Contains(t, hash, "sha256:")

	got, err := store.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	ok, err := store.Exists(ctx, hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileStoreIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	data := []byte("same bytes")
	first, err := store.Store(ctx, data)
	require.NoError(t, err)
	second, err := store.Store(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStoreRejectsBadHash(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, hash := range []string{"md5:abc", "sha256:not-hex", "deadbeef"} {
		_, err := store.Get(ctx, hash)
		assert.Error(t, err, hash)
		_, err = store.Exists(ctx, hash)
		assert.Error(t, err, hash)
		assert.Error(t, store.Delete(ctx, hash), hash)
	}
}

func TestFileStoreDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	hash, err := store.Store(ctx, []byte("ephemeral"))
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, hash))

	ok, err := store.Exists(ctx, hash)
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting again is a no-op.
	assert.NoError(t, store.Delete(ctx, hash))
}

func TestFactory(t *testing.T) {
	ctx := context.Background()

	t.Run("fs", func(t *testing.T) {
		store, err := New(ctx, Config{Backend: BackendFS, Dir: filepath.Join(t.TempDir(), "blobs")})
		require.NoError(t, err)
		_, ok := store.(*FileStore)
		assert.True(t, ok)
	})

	t.Run("empty backend defaults to fs", func(t *testing.T) {
		store, err := New(ctx, Config{Dir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("fs requires dir", func(t *testing.T) {
		_, err := New(ctx, Config{Backend: BackendFS})
		assert.Error(t, err)
	})

	t.Run("s3 requires bucket", func(t *testing.T) {
		_, err := New(ctx, Config{Backend: BackendS3})
		assert.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := New(ctx, Config{Backend: "ftp"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported backend")
	})
}
