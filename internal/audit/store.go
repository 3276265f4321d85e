// Package audit is the append-only record of every triage run. One row per
// processed ticket, written exactly once at the end of the run regardless of
// outcome. Rows are never updated or deleted.
package audit

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"cancelbot/internal/logging"
)

// Record is one audit row: who ran, which conversation, what was decided
// and whether the terminal action succeeded. ResultJSON carries the full
// machine-readable outcome for later inspection.
type Record struct {
	ID         int64
	RunID      string
	ConvoSlug  string
	OrderID    string
	Intent     string
	Success    bool
	ResultJSON string
	CreatedAt  time.Time
}

// Store wraps the sqlite database holding the actions log.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the audit database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Audit("audit store ready at %s", path)
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS actions (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL,
		convo_slug  TEXT NOT NULL,
		order_id    TEXT,
		intent      TEXT NOT NULL,
		success     INTEGER NOT NULL,
		result_json TEXT NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_actions_run_id ON actions(run_id);
	CREATE INDEX IF NOT EXISTS idx_actions_convo ON actions(convo_slug);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	return nil
}

// LogAction appends one record. Append-only: there is no update path.
func (s *Store) LogAction(rec *Record) error {
	result, err := s.db.Exec(
		`INSERT INTO actions (run_id, convo_slug, order_id, intent, success, result_json)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.ConvoSlug, rec.OrderID, rec.Intent, boolToInt(rec.Success), rec.ResultJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		rec.ID = id
	}
	logging.Audit("recorded action run=%s convo=%s intent=%s success=%v", rec.RunID, rec.ConvoSlug, rec.Intent, rec.Success)
	return nil
}

// Recent returns the most recent n records, newest first.
func (s *Store) Recent(n int) ([]Record, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.Query(
		`SELECT id, run_id, convo_slug, COALESCE(order_id, ''), intent, success, result_json, created_at
		 FROM actions ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var success int
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.ConvoSlug, &rec.OrderID, &rec.Intent, &success, &rec.ResultJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		rec.Success = success != 0
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
