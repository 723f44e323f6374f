// Package fulltext implements the companion store for fulltext-indexed
// attribute values: `datoms` rows for a fulltext attribute carry a
// surrogate rowid rather than the string itself, and this store is where
// that rowid resolves to text. Modeled on
// internal/storage/ephemeral/store.go's pattern of a small, dedicated
// SQLite-backed side store guarded by its own mutex, kept separate from
// the main substrate so its schema can evolve independently.
package fulltext

import (
	"context"
	"database/sql"
	"sync"

	"github.com/factbase/factbase/internal/substrate"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS fulltext_values (
	rowid INTEGER PRIMARY KEY,
	text  TEXT NOT NULL UNIQUE
);
`

// Store resolves fulltext attribute values to and from their surrogate
// rowids, deduplicating by text value.
type Store struct {
	mu sync.RWMutex
	db *sql.DB
}

// Open opens (and initializes, if new) a fulltext companion store at
// path, sharing the embedded pure-Go SQLite driver the main substrate
// uses.
func Open(path string) (*Store, error) {
	sub, err := substrate.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	if _, err := sub.DB().Exec(schemaDDL); err != nil {
		_ = sub.Close()
		return nil, err
	}
	return &Store{db: sub.DB()}, nil
}

// Close releases the store's connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Intern finds or creates the fulltext_values row for text, returning its
// rowid. Safe for concurrent use; a unique index on text makes concurrent
// inserts of the same value converge on one row.
func (s *Store) Intern(ctx context.Context, text string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO fulltext_values(text) VALUES (?)`, text); err != nil {
		return 0, err
	}
	var rowid int64
	row := s.db.QueryRowContext(ctx, `SELECT rowid FROM fulltext_values WHERE text = ?`, text)
	if err := row.Scan(&rowid); err != nil {
		return 0, err
	}
	return rowid, nil
}

// Resolve returns the text stored at rowid.
func (s *Store) Resolve(ctx context.Context, rowid int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var text string
	row := s.db.QueryRowContext(ctx, `SELECT text FROM fulltext_values WHERE rowid = ?`, rowid)
	if err := row.Scan(&text); err != nil {
		return "", err
	}
	return text, nil
}
