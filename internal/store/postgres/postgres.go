// Package postgres provides the networked relational store backend.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/graaaaa/playpulse/internal/store"
	"github.com/graaaaa/playpulse/internal/store/sqlbase"
)

// Options configures the connection pool.
type Options struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultOptions returns pool settings suitable for a single service instance.
func DefaultOptions(dsn string) Options {
	return Options{
		DSN:             dsn,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// Store is a PostgreSQL-backed store.Store.
type Store struct {
	*sqlbase.DB
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Dialect uses native TIMESTAMPTZ values and numbered placeholders.
var Dialect = sqlbase.Dialect{
	Name:     "postgres",
	Numbered: true,
	Time:     func(t time.Time) any { return t.UTC() },

	ScopeLock:    `SELECT pg_advisory_xact_lock(hashtext(?))`,
	SequenceSync: `SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE((SELECT MAX(id) FROM %s), 0) + 1, false)`,
}

// Open connects to PostgreSQL, sizes the pool and applies pending migrations.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if opts.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{DB: sqlbase.New(db, Dialect), db: db}, nil
}
