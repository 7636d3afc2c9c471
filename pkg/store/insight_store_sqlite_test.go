package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/Mindburn-Labs/vigil/pkg/insight"
	"github.com/Mindburn-Labs/vigil/pkg/ledger"

	_ "modernc.org/sqlite"
)

func setupLedgerDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteLedgerStore_AppendAndEntries(t *testing.T) {
	db := setupLedgerDB(t)
	s, err := NewSQLiteLedgerStore(db)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	first := &ledger.Entry{
		Sequence:    1,
		EntryType:   ledger.EntryInsightRecorded,
		ContentHash: "sha256:aaa",
		PrevHash:    "genesis",
		Timestamp:   time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Author:      "incident-worker",
		Payload:     json.RawMessage(`{"id":"ins-1"}`),
	}
	second := &ledger.Entry{
		Sequence:    2,
		EntryType:   ledger.EntryInsightPromoted,
		ContentHash: "sha256:bbb",
		PrevHash:    "sha256:aaa",
		Timestamp:   time.Date(2026, 3, 14, 9, 5, 0, 0, time.UTC),
		Author:      "maintainer-1",
		Payload:     json.RawMessage(`{"id":"cur-1"}`),
	}

	if err := s.AppendEntry(ctx, first); err != nil {
		t.Fatalf("AppendEntry failed: %v", err)
	}
	if err := s.AppendEntry(ctx, second); err != nil {
		t.Fatalf("AppendEntry failed: %v", err)
	}

	entries, err := s.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Sequence != 1 || entries[1].Sequence != 2 {
		t.Fatal("entries should come back in sequence order")
	}
	if entries[0].ContentHash != "sha256:aaa" {
		t.Errorf("ContentHash = %q, want sha256:aaa", entries[0].ContentHash)
	}
	if entries[1].PrevHash != "sha256:aaa" {
		t.Errorf("PrevHash = %q, want sha256:aaa", entries[1].PrevHash)
	}
	if !entries[0].Timestamp.Equal(first.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", entries[0].Timestamp, first.Timestamp)
	}
	if entries[0].Author != "incident-worker" {
		t.Errorf("Author = %q, want incident-worker", entries[0].Author)
	}
	if string(entries[1].Payload) != `{"id":"cur-1"}` {
		t.Errorf("Payload = %s, want {\"id\":\"cur-1\"}", entries[1].Payload)
	}
}

func TestSQLiteLedgerStore_Empty(t *testing.T) {
	db := setupLedgerDB(t)
	s, err := NewSQLiteLedgerStore(db)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	entries, err := s.Entries(context.Background())
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}

func TestSQLiteLedgerStore_DuplicateSequenceRejected(t *testing.T) {
	db := setupLedgerDB(t)
	s, err := NewSQLiteLedgerStore(db)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	e := &ledger.Entry{
		Sequence:    1,
		EntryType:   ledger.EntryInsightRecorded,
		ContentHash: "sha256:aaa",
		PrevHash:    "genesis",
		Timestamp:   time.Now().UTC(),
		Payload:     json.RawMessage(`{"id":"ins-1"}`),
	}
	if err := s.AppendEntry(ctx, e); err != nil {
		t.Fatalf("AppendEntry failed: %v", err)
	}
	if err := s.AppendEntry(ctx, e); err == nil {
		t.Fatal("expected primary key violation for duplicate sequence")
	}
}

func TestSQLiteLedgerStore_LedgerRoundTrip(t *testing.T) {
	db := setupLedgerDB(t)
	s, err := NewSQLiteLedgerStore(db)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	l, err := ledger.Open(ctx, s)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}

	obligationID := "cache.vary.honored"
	ins := &insight.Insight{
		ID:            "ins-1",
		Source:        "incident-2107",
		ObligationID:  &obligationID,
		Invariant:     "cache key must include every vary header",
		Confidence:    insight.ConfidenceHigh,
		Scope:         insight.ScopeGeneralizable,
		EvidenceCount: 6,
	}
	if _, err := l.Record(ctx, ins); err != nil {
		t.Fatalf("record: %v", err)
	}
	cur, err := l.Promote(ctx, "ins-1", ledger.Reviewer{ID: "maintainer-1"})
	if err != nil {
		t.Fatalf("promote: %v", err)
	}

	// A fresh ledger over the same database must replay to the same
	// state and still verify.
	reopened, err := ledger.Open(ctx, s)
	if err != nil {
		t.Fatalf("reopen ledger: %v", err)
	}
	if reopened.Head() != l.Head() {
		t.Fatal("reopened ledger should reach the same head hash")
	}
	if ok, reason := reopened.Verify(); !ok {
		t.Fatalf("reopened chain should verify: %s", reason)
	}
	if len(reopened.Pending()) != 1 || len(reopened.Curated()) != 1 {
		t.Fatal("partitions should survive the round trip")
	}
	if _, err := reopened.Resolve(cur.ID); err != nil {
		t.Fatalf("curated record should resolve after reopen: %v", err)
	}
}
