package store

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/vigil/pkg/ledger"
)

func newMockPostgresStore(t *testing.T) (*PostgresLedgerStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS ledger_entries")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	s, err := NewPostgresLedgerStore(db)
	require.NoError(t, err)
	return s, mock
}

func TestPostgresLedgerStore_AppendEntry(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	ts := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).
		WithArgs(int64(1), ledger.EntryInsightRecorded, "sha256:aaa", "genesis", ts, "incident-worker", `{"id":"ins-1"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.AppendEntry(context.Background(), &ledger.Entry{
		Sequence:    1,
		EntryType:   ledger.EntryInsightRecorded,
		ContentHash: "sha256:aaa",
		PrevHash:    "genesis",
		Timestamp:   ts,
		Author:      "incident-worker",
		Payload:     json.RawMessage(`{"id":"ins-1"}`),
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerStore_AppendEntryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).
		WillReturnError(assert.AnError)

	err := s.AppendEntry(context.Background(), &ledger.Entry{
		Sequence:    1,
		EntryType:   ledger.EntryInsightRecorded,
		ContentHash: "sha256:aaa",
		PrevHash:    "genesis",
		Timestamp:   time.Now().UTC(),
		Payload:     json.RawMessage(`{}`),
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to persist ledger entry")
}

func TestPostgresLedgerStore_Entries(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	ts := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"sequence", "entry_type", "content_hash", "prev_hash", "timestamp", "author", "payload"}).
		AddRow(int64(1), ledger.EntryInsightRecorded, "sha256:aaa", "genesis", ts, "incident-worker", `{"id":"ins-1"}`).
		AddRow(int64(2), ledger.EntryInsightPromoted, "sha256:bbb", "sha256:aaa", ts.Add(5*time.Minute), "maintainer-1", `{"id":"cur-1"}`)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT sequence, entry_type, content_hash, prev_hash, timestamp, author, payload")).
		WillReturnRows(rows)

	entries, err := s.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(1), entries[0].Sequence)
	assert.Equal(t, ledger.EntryInsightPromoted, entries[1].EntryType)
	assert.Equal(t, "sha256:aaa", entries[1].PrevHash)
	assert.Equal(t, "maintainer-1", entries[1].Author)
	assert.JSONEq(t, `{"id":"cur-1"}`, string(entries[1].Payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}
