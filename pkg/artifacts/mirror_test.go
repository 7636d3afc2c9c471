package artifacts

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store for mirror tests.
type memStore struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	puts   int
	broken bool
}

func newMemStore() *memStore {
	return &memStore{blobs: make(map[string][]byte)}
}

func (s *memStore) Store(_ context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return "", errors.New("archive unavailable")
	}
	hash := HashOf(data)
	s.blobs[hash] = append([]byte(nil), data...)
	s.puts++
	return hash, nil
}

func (s *memStore) Get(_ context.Context, hash string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[hash]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (s *memStore) Exists(_ context.Context, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[hash]
	return ok, nil
}

func (s *memStore) Delete(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, hash)
	return nil
}

func TestMirrorStoresBothSides(t *testing.T) {
	ctx := context.Background()
	local, archive := newMemStore(), newMemStore()
	m := NewMirror(local, archive, 100, 10)

	data := []byte("trace capture")
	hash, err := m.Store(ctx, data)
	require.NoError(t, err)

	for _, s := range []*memStore{local, archive} {
		ok, err := s.Exists(ctx, hash)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestMirrorSkipsArchivedBlobs(t *testing.T) {
	ctx := context.Background()
	local, archive := newMemStore(), newMemStore()
	m := NewMirror(local, archive, 100, 10)

	data := []byte("already archived")
	_, err := archive.Store(ctx, data)
	require.NoError(t, err)

	_, err = m.Store(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, 1, archive.puts, "existing archive blob must not be re-uploaded")
}

func TestMirrorFailsLoudWhenArchiveDown(t *testing.T) {
	ctx := context.Background()
	local, archive := newMemStore(), newMemStore()
	archive.broken = true
	m := NewMirror(local, archive, 100, 10)

	_, err := m.Store(ctx, []byte("must not silently drop"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mirror to archive")
}

func TestMirrorGetBackfillsLocal(t *testing.T) {
	ctx := context.Background()
	local, archive := newMemStore(), newMemStore()
	m := NewMirror(local, archive, 100, 10)

	data := []byte("only in archive")
	hash, err := archive.Store(ctx, data)
	require.NoError(t, err)

	got, err := m.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	ok, err := local.Exists(ctx, hash)
	require.NoError(t, err)
	assert.True(t, ok, "archive hit should backfill the local store")
}

func TestMirrorRateLimitRespectsCancellation(t *testing.T) {
	local, archive := newMemStore(), newMemStore()
	// One upload per hour with burst 1: the second write must wait.
	m := NewMirror(local, archive, 1.0/3600, 1)

	ctx := context.Background()
	_, err := m.Store(ctx, []byte("first consumes the burst"))
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = m.Store(cancelled, []byte("second waits and aborts"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate wait")
}
