// Package artifacts stores captured evidence blobs by content hash.
//
// Gate evidence references artifacts (traces, captures, metric dumps)
// by "sha256:<hex>" hash. The store is content-addressed and
// idempotent: storing the same bytes twice returns the same hash and
// writes nothing. Backends cover the local filesystem, S3-compatible
// object stores and GCS; a Mirror pairs a local store with a remote
// archive.
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store is the content-addressed artifact contract.
type Store interface {
	// Store persists data and returns its "sha256:<hex>" content hash.
	Store(ctx context.Context, data []byte) (string, error)
	// Get retrieves data by content hash.
	Get(ctx context.Context, hash string) ([]byte, error)
	// Exists reports whether the artifact is present.
	Exists(ctx context.Context, hash string) (bool, error)
	// Delete removes an artifact. Deleting an absent artifact is not
	// an error.
	Delete(ctx context.Context, hash string) error
}

const hashPrefix = "sha256:"

// HashOf returns the content hash for data without storing it.
func HashOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hashPrefix + hex.EncodeToString(sum[:])
}

// parseHash validates a "sha256:<hex>" reference and returns the raw
// hex. Rejecting malformed references here keeps path and object key
// construction safe in every backend.
func parseHash(hash string) (string, error) {
	raw, ok := strings.CutPrefix(hash, hashPrefix)
	if !ok {
		return "", fmt.Errorf("artifacts: invalid hash format: %s", hash)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("artifacts: invalid hash hex: %w", err)
	}
	return raw, nil
}

// FileStore is the filesystem backend. Blobs live flat under one
// directory as <hex>.blob.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates the store directory if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("artifacts: ensure dir %s: %w", baseDir, err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// Store writes the blob via temp file and rename so a crashed write
// never leaves a half blob under its final name.
func (s *FileStore) Store(_ context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := HashOf(data)
	path := filepath.Join(s.baseDir, hash[len(hashPrefix):]+".blob")

	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("artifacts: write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("artifacts: commit blob: %w", err)
	}
	return hash, nil
}

func (s *FileStore) Get(_ context.Context, hash string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := parseHash(hash)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.baseDir, raw+".blob"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifacts: not found: %s", hash)
		}
		return nil, fmt.Errorf("artifacts: read blob: %w", err)
	}
	return data, nil
}

func (s *FileStore) Exists(_ context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := parseHash(hash)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filepath.Join(s.baseDir, raw+".blob"))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("artifacts: stat blob: %w", err)
}

func (s *FileStore) Delete(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := parseHash(hash)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.baseDir, raw+".blob")); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("artifacts: delete blob: %w", err)
	}
	return nil
}
