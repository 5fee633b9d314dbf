// Package backend selects and opens the configured store implementation.
package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/graaaaa/playpulse/internal/config"
	"github.com/graaaaa/playpulse/internal/logging"
	"github.com/graaaaa/playpulse/internal/singleinstance"
	"github.com/graaaaa/playpulse/internal/store"
	"github.com/graaaaa/playpulse/internal/store/postgres"
	"github.com/graaaaa/playpulse/internal/store/sqlite"
)

// Open opens the backend named by cfg.Driver. The embedded backend also takes
// an exclusive lock next to the database file; Close on the returned store
// releases it.
func Open(ctx context.Context, cfg config.StorageConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return openSQLite(ctx, cfg.SQLitePath)
	case config.DriverPostgres:
		opts := postgres.DefaultOptions(cfg.Postgres.DSN.Value())
		if cfg.Postgres.MaxOpenConns > 0 {
			opts.MaxOpenConns = cfg.Postgres.MaxOpenConns
		}
		if cfg.Postgres.MaxIdleConns > 0 {
			opts.MaxIdleConns = cfg.Postgres.MaxIdleConns
		}
		if cfg.Postgres.ConnMaxLifetime > 0 {
			opts.ConnMaxLifetime = cfg.Postgres.ConnMaxLifetime
		}
		if cfg.Postgres.ConnMaxIdleTime > 0 {
			opts.ConnMaxIdleTime = cfg.Postgres.ConnMaxIdleTime
		}
		s, err := postgres.Open(ctx, opts)
		if err != nil {
			return nil, err
		}
		logging.Info().Int("max_open_conns", opts.MaxOpenConns).Msg("postgres store opened")
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", store.ErrUnknownDriver, cfg.Driver)
	}
}

func openSQLite(ctx context.Context, path string) (store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	release, ok, err := singleinstance.AcquireLock(path + ".lock")
	if err != nil {
		return nil, fmt.Errorf("acquire database lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("database %s is in use by another process", path)
	}

	s, err := sqlite.Open(ctx, path)
	if err != nil {
		release()
		return nil, err
	}
	logging.Info().Str("path", path).Msg("sqlite store opened")
	return &lockedStore{Store: s, release: release}, nil
}

// lockedStore releases the single-writer lock after closing the database.
type lockedStore struct {
	*sqlite.Store
	release func()
}

// Close closes the database and releases the lock file.
func (s *lockedStore) Close() error {
	err := s.Store.Close()
	s.release()
	return err
}

// Unwrap returns the embedded SQLite store.
func (s *lockedStore) Unwrap() store.Store {
	return s.Store
}
