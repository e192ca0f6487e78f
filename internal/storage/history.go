package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/code-enforcerr/MyMutualAME/internal/batch"
)

// History keeps a durable log of finished batches in SQLite. One row per
// batch; per-record detail stays in the workspace summary.json.
type History struct {
	db *sql.DB
}

// HistoryEntry is one finished batch.
type HistoryEntry struct {
	BatchID       string
	Requester     string
	FinishedAt    time.Time
	ValidCount    int
	InvalidCount  int
	Matched       int
	Mismatched    int
	Indeterminate int
	Failed        int
	DurationMS    int64
}

const historySchema = `
CREATE TABLE IF NOT EXISTS batches (
	batch_id      TEXT PRIMARY KEY,
	requester     TEXT NOT NULL DEFAULT '',
	finished_at   INTEGER NOT NULL,
	valid_count   INTEGER NOT NULL,
	invalid_count INTEGER NOT NULL,
	matched       INTEGER NOT NULL,
	mismatched    INTEGER NOT NULL,
	indeterminate INTEGER NOT NULL,
	failed        INTEGER NOT NULL,
	duration_ms   INTEGER NOT NULL
);
`

// OpenHistory opens (creating if needed) the history database at path.
func OpenHistory(path string) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &History{db: db}, nil
}

// Record logs one finished batch.
func (h *History) Record(ctx context.Context, s batch.Summary) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO batches
			(batch_id, requester, finished_at, valid_count, invalid_count,
			 matched, mismatched, indeterminate, failed, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.BatchID, s.Requester, time.Now().UTC().UnixMilli(),
		s.ValidCount, s.InvalidCount,
		s.Counts.Matched, s.Counts.Mismatched, s.Counts.Indeterminate, s.Counts.Failed,
		s.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record batch %s: %w", s.BatchID, err)
	}
	return nil
}

// Recent returns up to n batches, newest first.
func (h *History) Recent(ctx context.Context, n int) ([]HistoryEntry, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT batch_id, requester, finished_at, valid_count, invalid_count,
		       matched, mismatched, indeterminate, failed, duration_ms
		FROM batches ORDER BY finished_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var finished int64
		if err := rows.Scan(&e.BatchID, &e.Requester, &finished, &e.ValidCount, &e.InvalidCount,
			&e.Matched, &e.Mismatched, &e.Indeterminate, &e.Failed, &e.DurationMS); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.FinishedAt = time.UnixMilli(finished).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the database handle.
func (h *History) Close() error { return h.db.Close() }
