// Package ledger implements the append-only insight ledger.
//
// Two partitions over one hash chain:
//   - pending: raw insights recorded after incidents and test sessions
//   - curated: insights promoted by an explicit reviewer action
//
// Entries are hash-chained to their predecessors. Append-only; no
// deletions or mutations. Promotion never rewrites a pending record:
// it appends a new curated record that references the original.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gowebpki/jcs"
)

// Entry types carried on the chain.
const (
	EntryInsightRecorded = "insight.recorded"
	EntryInsightPromoted = "insight.promoted"
)

// Entry is an immutable, hash-chained ledger entry. Payload holds the
// JSON encoding of the recorded or promoted insight.
type Entry struct {
	Sequence    uint64          `json:"sequence"`
	EntryType   string          `json:"entry_type"`
	ContentHash string          `json:"content_hash"`
	PrevHash    string          `json:"prev_hash"`
	Timestamp   time.Time       `json:"timestamp"`
	Author      string          `json:"author,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

// Chain is the append-only, hash-chained log underneath the ledger.
type Chain struct {
	mu       sync.RWMutex
	entries  []Entry
	headHash string
	clock    func() time.Time
}

// NewChain creates an empty chain.
func NewChain() *Chain {
	return &Chain{
		entries:  make([]Entry, 0),
		headHash: "genesis",
		clock:    time.Now,
	}
}

// WithClock overrides the clock for testing.
func (c *Chain) WithClock(clock func() time.Time) *Chain {
	c.clock = clock
	return c
}

// hashEntry computes the content hash over the canonical JSON form of
// the entry's chained fields, so the hash is independent of key order
// and whitespace in the stored payload.
func hashEntry(seq uint64, entryType string, payload json.RawMessage, prevHash string) (string, error) {
	hashInput := struct {
		Seq     uint64          `json:"seq"`
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
		Prev    string          `json:"prev"`
	}{seq, entryType, payload, prevHash}

	raw, err := json.Marshal(hashInput)
	if err != nil {
		return "", fmt.Errorf("marshal entry: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize entry: %w", err)
	}
	h := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}

// Append adds an entry to the chain and returns it.
func (c *Chain) Append(entryType, author string, payload json.RawMessage) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := uint64(len(c.entries)) + 1
	contentHash, err := hashEntry(seq, entryType, payload, c.headHash)
	if err != nil {
		return nil, err
	}

	entry := Entry{
		Sequence:    seq,
		EntryType:   entryType,
		ContentHash: contentHash,
		PrevHash:    c.headHash,
		Timestamp:   c.clock(),
		Author:      author,
		Payload:     payload,
	}

	c.entries = append(c.entries, entry)
	c.headHash = contentHash
	return &entry, nil
}

// rollback drops the most recent entry if it matches seq. Used when a
// write-through persist fails after the in-memory append.
func (c *Chain) rollback(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n := len(c.entries); n > 0 && c.entries[n-1].Sequence == seq {
		c.entries = c.entries[:n-1]
		if n == 1 {
			c.headHash = "genesis"
		} else {
			c.headHash = c.entries[n-2].ContentHash
		}
	}
}

// replay rebuilds the chain from persisted entries, verifying the
// hash chain as it goes.
func (c *Chain) replay(entries []Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prevHash := "genesis"
	for i, entry := range entries {
		wantSeq := uint64(i) + 1
		if entry.Sequence != wantSeq {
			return &ChainError{Sequence: wantSeq, Detail: fmt.Sprintf("expected sequence %d, got %d", wantSeq, entry.Sequence)}
		}
		if entry.PrevHash != prevHash {
			return &ChainError{Sequence: entry.Sequence, Detail: fmt.Sprintf("expected prev %s, got %s", prevHash, entry.PrevHash)}
		}
		computed, err := hashEntry(entry.Sequence, entry.EntryType, entry.Payload, entry.PrevHash)
		if err != nil {
			return &ChainError{Sequence: entry.Sequence, Detail: err.Error()}
		}
		if computed != entry.ContentHash {
			return &ChainError{Sequence: entry.Sequence, Detail: "content hash mismatch"}
		}
		prevHash = entry.ContentHash
	}

	c.entries = append(c.entries[:0], entries...)
	c.headHash = prevHash
	return nil
}

// Get retrieves an entry by sequence number.
func (c *Chain) Get(seq uint64) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if seq == 0 || seq > uint64(len(c.entries)) {
		return nil, fmt.Errorf("entry %d not found", seq)
	}
	entry := c.entries[seq-1]
	return &entry, nil
}

// Head returns the current head hash.
func (c *Chain) Head() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.headHash
}

// Length returns the number of entries.
func (c *Chain) Length() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns a copy of all entries in sequence order.
func (c *Chain) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Verify checks the integrity of the entire chain.
func (c *Chain) Verify() (bool, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	prevHash := "genesis"
	for _, entry := range c.entries {
		if entry.PrevHash != prevHash {
			return false, fmt.Sprintf("chain broken at entry %d: expected prev %s, got %s", entry.Sequence, prevHash, entry.PrevHash)
		}
		computed, err := hashEntry(entry.Sequence, entry.EntryType, entry.Payload, entry.PrevHash)
		if err != nil {
			return false, fmt.Sprintf("failed to hash entry %d: %v", entry.Sequence, err)
		}
		if computed != entry.ContentHash {
			return false, fmt.Sprintf("hash mismatch at entry %d", entry.Sequence)
		}
		prevHash = entry.ContentHash
	}

	return true, "chain verified"
}
