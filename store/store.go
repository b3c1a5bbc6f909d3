// Package store records the history of snapshot captures in SQLite: what
// was asked for, where the output went and how it ended.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no capture matches.
var ErrNotFound = errors.New("store: capture not found")

// Schema is the capture history schema.
const Schema = `
CREATE TABLE IF NOT EXISTS captures (
    id          TEXT PRIMARY KEY,
    keyword     TEXT NOT NULL DEFAULT '',
    url         TEXT NOT NULL,
    folder      TEXT NOT NULL,
    status      TEXT NOT NULL DEFAULT 'running',
    error       TEXT NOT NULL DEFAULT '',
    assets      INTEGER NOT NULL DEFAULT 0,
    written     INTEGER NOT NULL DEFAULT 0,
    skipped     INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_captures_folder ON captures(folder, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_captures_time ON captures(created_at DESC);
`

// Capture statuses.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Capture is one recorded snapshot attempt.
type Capture struct {
	ID         string `json:"id"`
	Keyword    string `json:"keyword,omitempty"`
	URL        string `json:"url"`
	Folder     string `json:"folder"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	Assets     int    `json:"assets"`
	Written    int    `json:"written"`
	Skipped    int    `json:"skipped"`
	DurationMS int64  `json:"duration_ms"`
	CreatedAt  int64  `json:"created_at"` // unix milliseconds
}

// Outcome is what Finish records.
type Outcome struct {
	Err      error
	Assets   int
	Written  int
	Skipped  int
	Duration time.Duration
}

// Store wraps the capture history database.
type Store struct {
	DB *sql.DB
}

// New creates a Store from an already-opened database with the schema
// applied.
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Begin records a capture in the running state.
func (s *Store) Begin(ctx context.Context, keyword, rawURL, folder string) (*Capture, error) {
	c := &Capture{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Keyword:   keyword,
		URL:       rawURL,
		Folder:    folder,
		Status:    StatusRunning,
		CreatedAt: time.Now().UnixMilli(),
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO captures (id, keyword, url, folder, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Keyword, c.URL, c.Folder, c.Status, c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	return c, nil
}

// Finish moves a capture to done, or failed when o.Err is set.
func (s *Store) Finish(ctx context.Context, id string, o Outcome) error {
	status, msg := StatusDone, ""
	if o.Err != nil {
		status, msg = StatusFailed, o.Err.Error()
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE captures SET status = ?, error = ?, assets = ?, written = ?, skipped = ?, duration_ms = ?
		WHERE id = ?`,
		status, msg, o.Assets, o.Written, o.Skipped, o.Duration.Milliseconds(), id)
	if err != nil {
		return fmt.Errorf("store: finish: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const captureColumns = `id, keyword, url, folder, status, error, assets, written, skipped, duration_ms, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanCapture(row scanner) (*Capture, error) {
	var c Capture
	err := row.Scan(&c.ID, &c.Keyword, &c.URL, &c.Folder, &c.Status, &c.Error,
		&c.Assets, &c.Written, &c.Skipped, &c.DurationMS, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: scan capture: %w", err)
	}
	return &c, nil
}

// Get returns a capture by ID.
func (s *Store) Get(ctx context.Context, id string) (*Capture, error) {
	return scanCapture(s.DB.QueryRowContext(ctx,
		`SELECT `+captureColumns+` FROM captures WHERE id = ?`, id))
}

// ByFolder returns the latest successful capture stored in folder.
func (s *Store) ByFolder(ctx context.Context, folder string) (*Capture, error) {
	return scanCapture(s.DB.QueryRowContext(ctx,
		`SELECT `+captureColumns+` FROM captures
		WHERE folder = ? AND status = ?
		ORDER BY created_at DESC LIMIT 1`, folder, StatusDone))
}

// Recent returns the latest captures, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Capture, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+captureColumns+` FROM captures
		ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var out []*Capture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
