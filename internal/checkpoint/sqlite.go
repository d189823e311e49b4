// Package checkpoint persists the pull loop's next cursor between runs.
package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bluebird-ink/windi/internal/cursor"
)

const schema = `
CREATE TABLE IF NOT EXISTS cursors (
	name       TEXT PRIMARY KEY,
	seq        TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// Store is a cursor checkpoint store.
type Store interface {
	Load(ctx context.Context, name string) (c cursor.Cursor, ok bool, err error)
	Save(ctx context.Context, name string, c cursor.Cursor) error
	Close() error
}

// SQLite keeps checkpoints in a single-table SQLite database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}
	// One writer; SQLite serializes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure checkpoint db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate checkpoint db: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// Load returns the stored cursor for name. ok is false when nothing was saved yet.
func (s *SQLite) Load(ctx context.Context, name string) (cursor.Cursor, bool, error) {
	var seq string
	err := s.db.QueryRowContext(ctx, `SELECT seq FROM cursors WHERE name = ?`, name).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return cursor.Zero, false, nil
	}
	if err != nil {
		return cursor.Zero, false, fmt.Errorf("load checkpoint %q: %w", name, err)
	}

	c, err := cursor.Decode(seq)
	if err != nil {
		return cursor.Zero, false, fmt.Errorf("load checkpoint %q: %w", name, err)
	}
	return c, true, nil
}

// Save stores c for name. A cursor lower than the stored one is ignored so a
// stale writer can never move a checkpoint backwards. Fixed-width hex compares
// in numeric order, which lets SQLite do the comparison.
func (s *SQLite) Save(ctx context.Context, name string, c cursor.Cursor) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO cursors (name, seq, updated_at) VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET seq = excluded.seq, updated_at = excluded.updated_at
WHERE excluded.seq > cursors.seq`,
		name, cursor.Encode(c), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save checkpoint %q: %w", name, err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
