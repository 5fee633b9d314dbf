// Package sqlite provides the embedded single-file store backend.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"

	"github.com/graaaaa/playpulse/internal/store"
	"github.com/graaaaa/playpulse/internal/store/sqlbase"
)

// Store is a SQLite-backed store.Store.
type Store struct {
	*sqlbase.DB
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Dialect encodes timestamps as fixed-width TEXT and uses ? placeholders.
var Dialect = sqlbase.Dialect{
	Name: "sqlite",
	Time: func(t time.Time) any { return t.UTC().Format(store.TimeFormat) },
}

// Open opens a SQLite database with WAL mode, busy_timeout, foreign keys and
// immediate transactions, then applies migrations.
// The path should be an absolute path to the database file.
func Open(ctx context.Context, path string) (*Store, error) {
	// URL-escape the path to handle special characters (?, #, spaces, etc.)
	escapedPath := url.PathEscape(path)

	// BEGIN IMMEDIATE takes the write lock up front so read-then-write
	// transactions wait on busy_timeout instead of failing with SQLITE_BUSY.
	dsn := fmt.Sprintf(
		"file:%s?mode=rwc&_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
		escapedPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Verify connection and PRAGMAs
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// WAL allows concurrent readers with a single writer
	db.SetMaxOpenConns(4)

	s := &Store{DB: sqlbase.New(db, Dialect), db: db}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// journalMode returns the current journal mode (for testing).
func (s *Store) journalMode() (string, error) {
	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		return "", err
	}
	return mode, nil
}
