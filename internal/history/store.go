// Package history persists a record of every executed command in SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrDisabled is returned by Open when no database path is configured.
var ErrDisabled = errors.New("history disabled")

// Entry is one executed command.
type Entry struct {
	ID         string
	Command    byte
	Value      byte
	Line       string
	ExitStatus int
	Stdout     string
	Stderr     string
	Error      string
	// Truncated is set when stdout or stderr hit the capture limit.
	Truncated  bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded reports whether the command spawned and exited 0.
func (e Entry) Succeeded() bool {
	return e.Error == "" && e.ExitStatus == 0
}

// Store is the SQLite-backed execution log.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the history database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, ErrDisabled
	}
	if err := checkLocalFilesystem(path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The worker is the only writer; one connection avoids SQLITE_BUSY
	// between it and API readers.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := bootstrap(pctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS executions (
  id          TEXT PRIMARY KEY,
  command     INTEGER NOT NULL,
  value       INTEGER NOT NULL,
  line        TEXT NOT NULL,
  exit_status INTEGER NOT NULL,
  stdout      TEXT,
  stderr      TEXT,
  error       TEXT,
  truncated   INTEGER NOT NULL DEFAULT 0,
  started_at  TEXT NOT NULL,
  finished_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS executions_started_at_idx ON executions(started_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}

// Record stores e and returns its id. An id is generated when e.ID is empty.
func (s *Store) Record(ctx context.Context, e Entry) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	if e.FinishedAt.IsZero() {
		e.FinishedAt = e.StartedAt
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO executions(id, command, value, line, exit_status, stdout, stderr, error, truncated, started_at, finished_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, e.ID, int(e.Command), int(e.Value), e.Line, e.ExitStatus,
		nullString(e.Stdout), nullString(e.Stderr), nullString(e.Error), e.Truncated,
		formatTime(e.StartedAt), formatTime(e.FinishedAt))
	if err != nil {
		return "", fmt.Errorf("record execution: %w", err)
	}
	return e.ID, nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, command, value, line, exit_status, stdout, stderr, error, truncated, started_at, finished_at
FROM executions
ORDER BY started_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                      Entry
			command, value         int
			stdout, stderr, errMsg sql.NullString
			startedS, finishedS    string
		)
		if err := rows.Scan(&e.ID, &command, &value, &e.Line, &e.ExitStatus,
			&stdout, &stderr, &errMsg, &e.Truncated, &startedS, &finishedS); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		e.Command = byte(command)
		e.Value = byte(value)
		e.Stdout = stdout.String
		e.Stderr = stderr.String
		e.Error = errMsg.String
		if t, err := time.Parse(timeLayout, startedS); err == nil {
			e.StartedAt = t
		}
		if t, err := time.Parse(timeLayout, finishedS); err == nil {
			e.FinishedAt = t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return out, nil
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM executions;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count executions: %w", err)
	}
	return n, nil
}

// Prune deletes entries that started more than retention ago.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := formatTime(time.Now().Add(-retention))
	res, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE started_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune executions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
