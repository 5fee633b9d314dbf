// Package recorder appends member-count and game-count snapshots.
package recorder

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/graaaaa/playpulse/internal/clock"
	"github.com/graaaaa/playpulse/internal/logging"
	"github.com/graaaaa/playpulse/internal/metrics"
	"github.com/graaaaa/playpulse/internal/model"
	"github.com/graaaaa/playpulse/internal/store"
)

// Recorder writes immutable snapshots.
type Recorder struct {
	store  store.Store
	clock  clock.Clock
	logger zerolog.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock overrides the clock.
func WithClock(c clock.Clock) Option {
	return func(r *Recorder) { r.clock = c }
}

// WithLogger overrides the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// New creates a Recorder.
func New(st store.Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:  st,
		clock:  clock.Real{},
		logger: logging.Logger().With().Str("component", "recorder").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordMember appends a member snapshot. Counts where online exceeds total
// are persisted as reported and logged as stale data, since gateway counts
// can disagree briefly during a resync.
func (r *Recorder) RecordMember(ctx context.Context, total, online int, eventID int64) (model.MemberSnapshot, error) {
	return r.recordMember(ctx, r.store, r.clock.Now(), total, online, eventID)
}

func (r *Recorder) recordMember(ctx context.Context, st store.Store, ts time.Time, total, online int, eventID int64) (model.MemberSnapshot, error) {
	if total < 0 || online < 0 {
		return model.MemberSnapshot{}, model.Validationf("member counts must not be negative (total=%d, online=%d)", total, online)
	}
	if eventID <= 0 {
		return model.MemberSnapshot{}, model.Validationf("event id is required")
	}

	if online > total {
		metrics.StaleDataWarnings.Inc()
		r.logger.Warn().
			Str("warning", "stale_data").
			Int("total_members", total).
			Int("online_members", online).
			Int64("event_id", eventID).
			Msg("online members exceed total members")
	}

	snap := model.MemberSnapshot{
		Timestamp:     ts,
		TotalMembers:  total,
		OnlineMembers: online,
		EventID:       eventID,
	}
	if err := st.InsertMemberSnapshot(ctx, &snap); err != nil {
		return model.MemberSnapshot{}, err
	}
	metrics.SnapshotsRecorded.WithLabelValues("member").Inc()
	return snap, nil
}

// RecordGame appends a game snapshot.
func (r *Recorder) RecordGame(ctx context.Context, game string, players int, eventID int64) (model.GameSnapshot, error) {
	return r.recordGame(ctx, r.store, r.clock.Now(), game, players, eventID)
}

func (r *Recorder) recordGame(ctx context.Context, st store.Store, ts time.Time, game string, players int, eventID int64) (model.GameSnapshot, error) {
	game = strings.TrimSpace(game)
	switch {
	case game == "":
		return model.GameSnapshot{}, model.Validationf("game name is required")
	case players < 0:
		return model.GameSnapshot{}, model.Validationf("player count must not be negative (%d)", players)
	case eventID <= 0:
		return model.GameSnapshot{}, model.Validationf("event id is required")
	}

	snap := model.GameSnapshot{
		Timestamp:   ts,
		GameName:    game,
		PlayerCount: players,
		EventID:     eventID,
	}
	if err := st.InsertGameSnapshot(ctx, &snap); err != nil {
		return model.GameSnapshot{}, err
	}
	metrics.SnapshotsRecorded.WithLabelValues("game").Inc()
	return snap, nil
}

// RecordPresence records one member snapshot and one game snapshot per
// playing game, all sharing one timestamp, in a single transaction.
func (r *Recorder) RecordPresence(ctx context.Context, p model.PresenceSnapshot, eventID int64) error {
	ts := r.clock.Now()
	return r.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		if _, err := r.recordMember(ctx, tx, ts, p.TotalMembers, p.OnlineMembers, eventID); err != nil {
			return err
		}
		for _, g := range p.PlayingGames {
			if g.Count <= 0 {
				continue
			}
			if _, err := r.recordGame(ctx, tx, ts, g.Name, g.Count, eventID); err != nil {
				return err
			}
		}
		return nil
	})
}
