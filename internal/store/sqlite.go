// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides outcome-ledger persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// createSchema creates the outcomes table and indexes if they don't exist
func (s *SQLiteStore) createSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS outcomes (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		message_id TEXT NOT NULL,
		state TEXT NOT NULL,
		reply_id TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		latency_ms INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_outcomes_user_message ON outcomes(user_id, message_id);
	CREATE INDEX IF NOT EXISTS idx_outcomes_created_at ON outcomes(created_at);
	CREATE INDEX IF NOT EXISTS idx_outcomes_state ON outcomes(state);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// SaveOutcome appends one outcome row
func (s *SQLiteStore) SaveOutcome(ctx context.Context, o *Outcome) error {
	if o.ID == "" {
		return fmt.Errorf("outcome ID is required")
	}
	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outcomes (id, user_id, message_id, state, reply_id, error, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, o.MessageID, o.State, o.ReplyID, o.Error,
		o.Latency.Milliseconds(), createdAt)
	if err != nil {
		return fmt.Errorf("inserting outcome: %w", err)
	}

	s.logger.Debug("outcome saved",
		"outcome_id", o.ID,
		"message_id", o.MessageID,
		"state", o.State)
	return nil
}

// GetOutcome returns the outcome with the given record ID
func (s *SQLiteStore) GetOutcome(ctx context.Context, id string) (*Outcome, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, message_id, state, reply_id, error, latency_ms, created_at
		 FROM outcomes WHERE id = ?`, id)
	return scanOutcome(row)
}

// GetOutcomeByMessageID returns the most recent outcome for a user's inbound message
func (s *SQLiteStore) GetOutcomeByMessageID(ctx context.Context, userID, messageID string) (*Outcome, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, message_id, state, reply_id, error, latency_ms, created_at
		 FROM outcomes WHERE user_id = ? AND message_id = ?
		 ORDER BY created_at DESC LIMIT 1`, userID, messageID)
	return scanOutcome(row)
}

// RecentOutcomes returns up to limit outcomes, newest first
func (s *SQLiteStore) RecentOutcomes(ctx context.Context, limit int) ([]*Outcome, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, message_id, state, reply_id, error, latency_ms, created_at
		 FROM outcomes ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []*Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// CountByState returns outcome totals grouped by terminal state
func (s *SQLiteStore) CountByState(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state, COUNT(*) FROM outcomes GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("counting outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scanning count row: %w", err)
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

// Close releases the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner covers both sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanOutcome(row scanner) (*Outcome, error) {
	var o Outcome
	var latencyMS int64
	err := row.Scan(&o.ID, &o.UserID, &o.MessageID, &o.State, &o.ReplyID,
		&o.Error, &latencyMS, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning outcome: %w", err)
	}
	o.Latency = time.Duration(latencyMS) * time.Millisecond
	return &o, nil
}
