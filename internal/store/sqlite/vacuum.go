package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/graaaaa/playpulse/internal/logging"
	"github.com/graaaaa/playpulse/internal/store"
)

// VacuumInterval is the minimum interval between VACUUM operations.
const VacuumInterval = 30 * 24 * time.Hour

const metadataKeyLastVacuum = "last_vacuum_at"

// VacuumIfNeeded runs VACUUM if the last vacuum was more than VacuumInterval ago.
// Returns true if VACUUM was performed, false if skipped.
func (s *Store) VacuumIfNeeded(ctx context.Context) (bool, error) {
	lastVacuum, err := s.getLastVacuumTime(ctx)
	if err != nil {
		return false, err
	}

	if time.Since(lastVacuum) < VacuumInterval {
		return false, nil
	}

	logging.Info().Time("last_run", lastVacuum).Msg("running VACUUM")
	start := time.Now()

	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return false, err
	}

	logging.Info().Dur("elapsed", time.Since(start)).Msg("VACUUM completed")

	if err := s.setLastVacuumTime(ctx, time.Now()); err != nil {
		// VACUUM itself succeeded
		logging.Warn().Err(err).Msg("failed to update last_vacuum_at")
	}

	return true, nil
}

func (s *Store) getLastVacuumTime(ctx context.Context) (time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM metadata WHERE key = ?",
		metadataKeyLastVacuum,
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		// Never vacuumed
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}

	t, err := time.Parse(store.TimeFormat, value)
	if err != nil {
		return time.Time{}, nil
	}

	return t, nil
}

func (s *Store) setLastVacuumTime(ctx context.Context, t time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)",
		metadataKeyLastVacuum,
		t.UTC().Format(store.TimeFormat),
	)
	return err
}
