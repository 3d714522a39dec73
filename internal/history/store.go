package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Schema for the history database. collection_runs is append-only; the
// indexes mirror the trend-query access paths (per-account recency and
// run-time range scans).
const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS collection_runs (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    run_uuid        TEXT NOT NULL,
    account_id      TEXT NOT NULL,
    collected_at    TEXT NOT NULL,  -- UTC, RFC3339
    local_timestamp TEXT NOT NULL,  -- operator-local display time
    total_instances INTEGER NOT NULL,
    instances       TEXT NOT NULL   -- JSON array of instance records
);

CREATE INDEX IF NOT EXISTS idx_runs_account_collected ON collection_runs(account_id, collected_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_collected ON collection_runs(collected_at);
`

// Store is the SQLite-backed history sink.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if necessary) the history database at path.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}
	return &Store{db: db, logger: logger.With().Str("subsystem", "history").Logger()}, nil
}

// Append inserts a new snapshot row. Always an insert, never an upsert.
func (s *Store) Append(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collection_runs (run_uuid, account_id, collected_at, local_timestamp, total_instances, instances)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunUUID, rec.AccountID,
		rec.CollectedAt.UTC().Format(time.RFC3339),
		rec.LocalTimestamp, rec.Total, string(rec.Instances),
	)
	if err != nil {
		return &SinkError{AccountID: rec.AccountID, Err: err}
	}

	s.logger.Info().
		Str("account_id", rec.AccountID).
		Int("total_instances", rec.Total).
		Str("local_timestamp", rec.LocalTimestamp).
		Msg("snapshot appended")
	return nil
}

// Recent returns the account's snapshots from the last N days, newest first.
func (s *Store) Recent(ctx context.Context, accountID string, days int) ([]Record, error) {
	since := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_uuid, account_id, collected_at, local_timestamp, total_instances, instances
		 FROM collection_runs
		 WHERE account_id = ? AND collected_at >= ?
		 ORDER BY collected_at DESC`,
		accountID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var collectedAt, instances string
		if err := rows.Scan(&rec.RunUUID, &rec.AccountID, &collectedAt, &rec.LocalTimestamp, &rec.Total, &instances); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		rec.CollectedAt, err = time.Parse(time.RFC3339, collectedAt)
		if err != nil {
			return nil, fmt.Errorf("history row for account %s has a bad collected_at %q: %w", rec.AccountID, collectedAt, err)
		}
		rec.Instances = []byte(instances)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
