// Package runlog keeps a durable history of login attempts and free-form
// per-phone notes in a local sqlite database.
//
// The log is ancillary: the orchestrator works fine without it, so callers
// treat a nil *Store as "logging disabled".
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the sqlite connection.
type Store struct {
	path string
	conn *sql.DB
}

// Open opens (or creates) the database at path and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("path is required")
	}

	clean := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(clean), 0700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	conn, err := openAndInit(clean)
	if err == nil {
		return &Store{path: clean, conn: conn}, nil
	}

	// A corrupt log must not take the service down: move it aside and start
	// a fresh one.
	if !isCorruptSQLiteError(err) {
		return nil, err
	}
	if _, statErr := os.Stat(clean); statErr == nil {
		backupPath := clean + ".corrupt." + time.Now().UTC().Format("20060102T150405Z")
		if renameErr := os.Rename(clean, backupPath); renameErr != nil {
			return nil, fmt.Errorf("db appears corrupt (%v), and rename failed: %w", err, renameErr)
		}
		for _, suffix := range []string{"-wal", "-shm"} {
			if _, sErr := os.Stat(clean + suffix); sErr == nil {
				_ = os.Rename(clean+suffix, backupPath+suffix)
			}
		}
	}

	conn, err = openAndInit(clean)
	if err != nil {
		return nil, err
	}
	return &Store{path: clean, conn: conn}, nil
}

func (s *Store) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Attempt is one completed login attempt.
type Attempt struct {
	ID       int64         `json:"id"`
	JobID    string        `json:"job_id"`
	Phone    string        `json:"phone"`
	Outcome  string        `json:"outcome"` // completed, failed, expired, cancelled
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	LoggedAt time.Time     `json:"logged_at"`
}

// RecordAttempt appends one attempt row. Safe on a nil Store.
func (s *Store) RecordAttempt(ctx context.Context, a Attempt) error {
	if s == nil || s.conn == nil {
		return nil
	}
	_, err := s.conn.ExecContext(ctx, `
INSERT INTO login_attempts (job_id, phone, outcome, error, duration_ms)
VALUES (?, ?, ?, ?, ?)`,
		a.JobID, a.Phone, a.Outcome, a.Error, a.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// ListAttempts returns the most recent attempts, newest first.
func (s *Store) ListAttempts(ctx context.Context, limit int) ([]Attempt, error) {
	if s == nil || s.conn == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.conn.QueryContext(ctx, `
SELECT id, job_id, phone, outcome, error, duration_ms, logged_at
FROM login_attempts
ORDER BY id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var durationMs int64
		var loggedAt string
		if err := rows.Scan(&a.ID, &a.JobID, &a.Phone, &a.Outcome, &a.Error, &durationMs, &loggedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Duration = time.Duration(durationMs) * time.Millisecond
		if ts, err := time.Parse("2006-01-02 15:04:05", loggedAt); err == nil {
			a.LoggedAt = ts
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Note returns the free-form note for a phone, or "" when none is stored.
func (s *Store) Note(ctx context.Context, phone string) (string, error) {
	if s == nil || s.conn == nil {
		return "", nil
	}
	var text string
	err := s.conn.QueryRowContext(ctx,
		`SELECT text FROM notes WHERE phone = ?`, phone).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read note: %w", err)
	}
	return text, nil
}

// SetNote upserts the note for a phone. An empty text deletes it.
func (s *Store) SetNote(ctx context.Context, phone, text string) error {
	if s == nil || s.conn == nil {
		return nil
	}
	if text == "" {
		if _, err := s.conn.ExecContext(ctx, `DELETE FROM notes WHERE phone = ?`, phone); err != nil {
			return fmt.Errorf("delete note: %w", err)
		}
		return nil
	}
	_, err := s.conn.ExecContext(ctx, `
INSERT INTO notes (phone, text, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(phone) DO UPDATE SET text = excluded.text, updated_at = CURRENT_TIMESTAMP`,
		phone, text)
	if err != nil {
		return fmt.Errorf("write note: %w", err)
	}
	return nil
}

func openAndInit(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", "file:"+filepath.ToSlash(path)+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite PRAGMAs are per-connection; keep a single shared connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	initErr := func() error {
		if err := conn.Ping(); err != nil {
			return fmt.Errorf("ping: %w", err)
		}
		if _, err := conn.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
			return fmt.Errorf("set journal_mode=WAL: %w", err)
		}
		if _, err := conn.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
			return fmt.Errorf("set busy_timeout: %w", err)
		}
		return runMigrations(conn)
	}()
	if initErr != nil {
		_ = conn.Close()
		return nil, initErr
	}
	return conn, nil
}

func isCorruptSQLiteError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "file is not a database"):
		return true
	case strings.Contains(msg, "malformed"):
		return true
	default:
		return false
	}
}
