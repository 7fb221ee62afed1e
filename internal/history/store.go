// Package history persists operation outcomes and failed attempts to
// SQLite so recovery behavior can be inspected across runs.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/audioforge/audioforge/internal/faults"
	"github.com/audioforge/audioforge/internal/retry"
)

//go:embed schema.sql
var schemaSQL string

// Store provides SQLite-backed recovery history. It implements
// retry.Sink so the orchestrator can persist attempt records.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates the history store at the given path, configuring WAL
// mode and running the embedded schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginOperation records the start of an operation.
func (s *Store) BeginOperation(ctx context.Context, op *retry.OperationContext) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operations (id, stage, target, input_path, started_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		op.ID, op.Stage, op.Target, op.InputPath, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert operation %s: %w", op.ID, err)
	}
	return nil
}

// FinishOperation marks an operation's terminal outcome.
func (s *Store) FinishOperation(ctx context.Context, opID string, ok bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE operations SET finished_at = ?, ok = ? WHERE id = ?`,
		formatTime(time.Now()), boolInt(ok), opID,
	)
	if err != nil {
		return fmt.Errorf("finish operation %s: %w", opID, err)
	}
	return nil
}

// RecordAttempt implements retry.Sink. Attempts arriving before their
// operation row exists get a stub row so the record is never dropped.
func (s *Store) RecordAttempt(opID string, rec retry.ErrorRecord) error {
	ctx := context.Background()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operations (id, started_at) VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING`,
		opID, formatTime(rec.At),
	)
	if err != nil {
		return fmt.Errorf("ensure operation %s: %w", opID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO attempts (op_id, attempt, kind, message, at)
		VALUES (?, ?, ?, ?, ?)`,
		opID, rec.Attempt, string(rec.Kind), rec.Message, formatTime(rec.At),
	)
	if err != nil {
		return fmt.Errorf("insert attempt %d for %s: %w", rec.Attempt, opID, err)
	}
	return nil
}

// SuccessRate returns the fraction of finished operations that
// succeeded, or 1 when none have finished yet.
func (s *Store) SuccessRate(ctx context.Context) (float64, error) {
	var total, succeeded int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(ok), 0) FROM operations WHERE ok IS NOT NULL`,
	).Scan(&total, &succeeded)
	if err != nil {
		return 0, fmt.Errorf("query success rate: %w", err)
	}
	if total == 0 {
		return 1, nil
	}
	return float64(succeeded) / float64(total), nil
}

// KindCount pairs a failure kind with its recorded occurrences.
type KindCount struct {
	Kind  faults.Kind
	Count int
}

// CommonKinds returns up to limit failure kinds ordered by descending
// frequency.
func (s *Store) CommonKinds(ctx context.Context, limit int) ([]KindCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*) AS n FROM attempts
		GROUP BY kind ORDER BY n DESC, kind ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query common kinds: %w", err)
	}
	defer rows.Close()

	var out []KindCount
	for rows.Next() {
		var kc KindCount
		var kind string
		if err := rows.Scan(&kind, &kc.Count); err != nil {
			return nil, fmt.Errorf("scan kind count: %w", err)
		}
		kc.Kind = faults.Kind(kind)
		out = append(out, kc)
	}
	return out, rows.Err()
}

// Attempt is one persisted failure record.
type Attempt struct {
	OpID    string
	Attempt int
	Kind    faults.Kind
	Message string
	At      time.Time
}

// RecentFailures returns up to limit attempts, newest first.
func (s *Store) RecentFailures(ctx context.Context, limit int) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT op_id, attempt, kind, message, at FROM attempts
		ORDER BY at DESC, attempt DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent failures: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var kind, at string
		if err := rows.Scan(&a.OpID, &a.Attempt, &kind, &a.Message, &at); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Kind = faults.Kind(kind)
		if a.At, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("parse attempt time: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
