// Package tracker turns start and stop presence signals into sessions.
//
// For one (user, game) pair there is at most one open session across all
// events. A start closes any dangling open session before opening a new one in
// the given event, a stop closes the pair's open session wherever it was
// opened, and the reaper force-closes sessions whose stop signal never
// arrived. All transitions for a pair run under that pair's lock, so
// concurrent signals apply in the order they acquire it.
package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/graaaaa/playpulse/internal/clock"
	"github.com/graaaaa/playpulse/internal/keylock"
	"github.com/graaaaa/playpulse/internal/logging"
	"github.com/graaaaa/playpulse/internal/metrics"
	"github.com/graaaaa/playpulse/internal/model"
	"github.com/graaaaa/playpulse/internal/store"
)

// DefaultStaleAfter is the default age at which open sessions are reaped.
const DefaultStaleAfter = 8 * time.Hour

// Close reasons recorded in metrics and logs.
const (
	reasonStop    = "stop"
	reasonRestart = "restart"
	reasonReaped  = "reaped"
)

// Tracker records session transitions.
type Tracker struct {
	store      store.Store
	locker     keylock.Locker
	clock      clock.Clock
	logger     zerolog.Logger
	staleAfter time.Duration
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the clock.
func WithClock(c clock.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// WithLogger overrides the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithStaleAfter sets the default reaping threshold.
func WithStaleAfter(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.staleAfter = d
		}
	}
}

// New creates a Tracker. A nil locker falls back to an in-process lock.
func New(st store.Store, locker keylock.Locker, opts ...Option) *Tracker {
	if locker == nil {
		locker = keylock.NewLocal()
	}
	t := &Tracker{
		store:      st,
		locker:     locker,
		clock:      clock.Real{},
		logger:     logging.Logger().With().Str("component", "tracker").Logger(),
		staleAfter: DefaultStaleAfter,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StaleAfter returns the configured reaping threshold.
func (t *Tracker) StaleAfter() time.Duration {
	return t.staleAfter
}

func lockKey(user, game string) string {
	return keylock.Key(user, game)
}

func validateKey(user, game string, eventID int64) error {
	switch {
	case user == "":
		return model.Validationf("user id is required")
	case game == "":
		return model.Validationf("game name is required")
	case eventID <= 0:
		return model.Validationf("event id is required")
	}
	return nil
}

// RecordStart opens a session for the pair in eventID, first closing any
// session left open by a missed stop signal, including one opened under a
// previously active event.
func (t *Tracker) RecordStart(ctx context.Context, user, game string, eventID int64) (model.Session, error) {
	if err := validateKey(user, game, eventID); err != nil {
		return model.Session{}, err
	}

	unlock, err := t.locker.Lock(ctx, lockKey(user, game))
	if err != nil {
		return model.Session{}, err
	}
	defer unlock()

	now := t.clock.Now()
	var (
		session  model.Session
		replaced *model.Session
	)
	err = t.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		open, err := tx.FindOpenSession(ctx, user, game)
		if err != nil {
			return err
		}
		if open != nil {
			minutes := model.DurationMinutes(open.StartTime, now)
			if _, err := tx.CloseSession(ctx, open.ID, now, minutes); err != nil {
				return err
			}
			open.EndTime = &now
			open.DurationMinutes = &minutes
			replaced = open
		}

		session = model.Session{UserID: user, GameName: game, StartTime: now, EventID: eventID}
		return tx.InsertSession(ctx, &session)
	})
	if err != nil {
		return model.Session{}, err
	}

	if replaced != nil {
		metrics.SessionsClosed.WithLabelValues(reasonRestart).Inc()
		t.logger.Debug().
			Int64("session_id", replaced.ID).
			Str("user_id", user).
			Str("game", game).
			Int("duration_minutes", *replaced.DurationMinutes).
			Msg("closed dangling session on start")
	}
	metrics.SessionsStarted.Inc()
	return session, nil
}

// RecordStop closes the pair's open session. A session opened under an event
// that has since been deactivated is still closed, so a stop never strands a
// session across an activation. It returns nil without error when there is
// nothing to close.
func (t *Tracker) RecordStop(ctx context.Context, user, game string, eventID int64) (*model.Session, error) {
	if err := validateKey(user, game, eventID); err != nil {
		return nil, err
	}

	unlock, err := t.locker.Lock(ctx, lockKey(user, game))
	if err != nil {
		return nil, err
	}
	defer unlock()

	open, err := t.store.FindOpenSession(ctx, user, game)
	if err != nil || open == nil {
		return nil, err
	}

	now := t.clock.Now()
	minutes := model.DurationMinutes(open.StartTime, now)
	closed, err := t.store.CloseSession(ctx, open.ID, now, minutes)
	if err != nil || !closed {
		return nil, err
	}

	open.EndTime = &now
	open.DurationMinutes = &minutes
	if open.EventID != eventID {
		t.logger.Debug().
			Int64("session_id", open.ID).
			Int64("session_event_id", open.EventID).
			Int64("event_id", eventID).
			Msg("closed session opened under another event")
	}
	metrics.SessionsClosed.WithLabelValues(reasonStop).Inc()
	return open, nil
}

// ReapStale force-closes every open session that started at or before
// now-maxAge, using now as the end time. A non-positive maxAge uses the
// configured threshold. Failures on individual sessions do not stop the sweep;
// they are joined into the returned error.
func (t *Tracker) ReapStale(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = t.staleAfter
	}

	open, err := t.store.ListSessions(ctx, store.SessionFilter{OpenOnly: true})
	if err != nil {
		return 0, err
	}

	cutoff := t.clock.Now().Add(-maxAge)
	var (
		reaped int
		errs   []error
	)
	for _, s := range open {
		if s.StartTime.After(cutoff) {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		ok, err := t.reapOne(ctx, s)
		if err != nil {
			t.logger.Warn().Err(err).Int64("session_id", s.ID).Msg("reap session failed")
			errs = append(errs, err)
			continue
		}
		if ok {
			reaped++
		}
	}

	if reaped > 0 {
		t.logger.Info().Int("reaped", reaped).Dur("max_age", maxAge).Msg("reaped stale sessions")
	}
	return reaped, errors.Join(errs...)
}

func (t *Tracker) reapOne(ctx context.Context, s model.Session) (bool, error) {
	unlock, err := t.locker.Lock(ctx, lockKey(s.UserID, s.GameName))
	if err != nil {
		return false, err
	}
	defer unlock()

	now := t.clock.Now()
	// CloseSession only matches open rows, so a stop that won the lock first
	// leaves nothing to do here.
	closed, err := t.store.CloseSession(ctx, s.ID, now, model.DurationMinutes(s.StartTime, now))
	if err != nil || !closed {
		return false, err
	}
	metrics.SessionsClosed.WithLabelValues(reasonReaped).Inc()
	return true, nil
}

// ListOpen returns the event's open sessions that started after now-maxAge.
// A non-positive maxAge uses the configured threshold.
func (t *Tracker) ListOpen(ctx context.Context, eventID int64, maxAge time.Duration) ([]model.Session, error) {
	if maxAge <= 0 {
		maxAge = t.staleAfter
	}

	open, err := t.store.ListSessions(ctx, store.SessionFilter{EventID: eventID, OpenOnly: true})
	if err != nil {
		return nil, err
	}

	cutoff := t.clock.Now().Add(-maxAge)
	fresh := open[:0]
	for _, s := range open {
		if s.StartTime.After(cutoff) {
			fresh = append(fresh, s)
		}
	}
	return fresh, nil
}
