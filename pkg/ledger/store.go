package ledger

import (
	"context"
	"sync"
)

// Store persists ledger entries. Implementations must preserve append
// order; the ledger verifies the hash chain on open and will refuse a
// store whose contents have been reordered or altered.
type Store interface {
	// AppendEntry durably records one entry.
	AppendEntry(ctx context.Context, e *Entry) error
	// Entries returns all entries in sequence order.
	Entries(ctx context.Context) ([]Entry, error)
}

// MemoryStore is an in-process Store for tests and ephemeral runs.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) AppendEntry(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *e)
	return nil
}

func (s *MemoryStore) Entries(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}
