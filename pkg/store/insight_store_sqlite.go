package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/vigil/pkg/ledger"

	_ "modernc.org/sqlite"
)

// SQLiteLedgerStore persists insight ledger entries in SQLite. The
// sequence column is the primary key, so a replayed chain always comes
// back in append order.
type SQLiteLedgerStore struct {
	db *sql.DB
}

func NewSQLiteLedgerStore(db *sql.DB) (*SQLiteLedgerStore, error) {
	s := &SQLiteLedgerStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteLedgerStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS ledger_entries (
        sequence INTEGER PRIMARY KEY,
        entry_type TEXT NOT NULL,
        content_hash TEXT NOT NULL,
        prev_hash TEXT NOT NULL,
		timestamp DATETIME,
		author TEXT,
		payload JSON
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteLedgerStore) AppendEntry(ctx context.Context, e *ledger.Entry) error {
	query := `INSERT INTO ledger_entries (
		sequence, entry_type, content_hash, prev_hash, timestamp, author, payload
	) VALUES (?, ?, ?, ?, ?, ?, ?)`

	timestamp := e.Timestamp.UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(ctx, query,
		int64(e.Sequence), e.EntryType, e.ContentHash, e.PrevHash, timestamp, e.Author, string(e.Payload),
	)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

func (s *SQLiteLedgerStore) Entries(ctx context.Context) ([]ledger.Entry, error) {
	query := `
        SELECT sequence, entry_type, content_hash, prev_hash, timestamp, author, payload
        FROM ledger_entries
        ORDER BY sequence ASC
    `
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntryRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func scanEntryRow(rows *sql.Rows) (ledger.Entry, error) {
	var (
		sequence    int64
		entryType   string
		contentHash string
		prevHash    string
		timestamp   string
		author      sql.NullString
		payload     sql.NullString
	)
	if err := rows.Scan(&sequence, &entryType, &contentHash, &prevHash, &timestamp, &author, &payload); err != nil {
		return ledger.Entry{}, err
	}

	return ledger.Entry{
		Sequence:    uint64(sequence),
		EntryType:   entryType,
		ContentHash: contentHash,
		PrevHash:    prevHash,
		Timestamp:   parseEntryTime(timestamp),
		Author:      author.String,
		Payload:     json.RawMessage(payload.String),
	}, nil
}

func parseEntryTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
