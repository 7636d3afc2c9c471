package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Mindburn-Labs/vigil/pkg/ledger"

	_ "github.com/lib/pq"
)

// PostgresLedgerStore persists insight ledger entries in PostgreSQL,
// for deployments where several runners share one ledger.
type PostgresLedgerStore struct {
	db *sql.DB
}

func NewPostgresLedgerStore(db *sql.DB) (*PostgresLedgerStore, error) {
	s := &PostgresLedgerStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresLedgerStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS ledger_entries (
		sequence BIGINT PRIMARY KEY,
		entry_type TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		prev_hash TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		author TEXT,
		payload JSONB
	)`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *PostgresLedgerStore) AppendEntry(ctx context.Context, e *ledger.Entry) error {
	query := `
		INSERT INTO ledger_entries (sequence, entry_type, content_hash, prev_hash, timestamp, author, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		int64(e.Sequence), e.EntryType, e.ContentHash, e.PrevHash, e.Timestamp.UTC(), e.Author, string(e.Payload),
	)
	if err != nil {
		return fmt.Errorf("failed to persist ledger entry: %w", err)
	}
	return nil
}

func (s *PostgresLedgerStore) Entries(ctx context.Context) ([]ledger.Entry, error) {
	query := `
		SELECT sequence, entry_type, content_hash, prev_hash, timestamp, author, payload
		FROM ledger_entries
		ORDER BY sequence ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []ledger.Entry
	for rows.Next() {
		var (
			e        ledger.Entry
			sequence int64
			author   sql.NullString
			payload  sql.NullString
		)
		if err := rows.Scan(&sequence, &e.EntryType, &e.ContentHash, &e.PrevHash, &e.Timestamp, &author, &payload); err != nil {
			return nil, err
		}
		e.Sequence = uint64(sequence)
		e.Author = author.String
		e.Payload = json.RawMessage(payload.String)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
