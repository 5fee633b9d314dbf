// Package transfer copies a whole dataset from one store backend to another,
// for example when moving an embedded SQLite deployment onto Postgres.
package transfer

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/graaaaa/playpulse/internal/logging"
	"github.com/graaaaa/playpulse/internal/model"
	"github.com/graaaaa/playpulse/internal/store"
)

// Stats counts the copied rows.
type Stats struct {
	Events          int `json:"events"`
	Sessions        int `json:"sessions"`
	MemberSnapshots int `json:"member_snapshots"`
	GameSnapshots   int `json:"game_snapshots"`
}

type options struct {
	logger zerolog.Logger
}

// Option configures Copy.
type Option func(*options)

// WithLogger sets the progress logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Copy writes every event of src, with its sessions and snapshots, into dst.
// Row ids and event ownership are preserved, so dst must not hold any events
// yet. The destination writes run in one transaction; on error nothing is
// kept.
func Copy(ctx context.Context, src, dst store.Store, opts ...Option) (Stats, error) {
	o := options{logger: logging.Logger().With().Str("component", "transfer").Logger()}
	for _, opt := range opts {
		opt(&o)
	}

	all := store.EventFilter{IncludeHidden: true}
	existing, err := dst.ListEvents(ctx, all)
	if err != nil {
		return Stats{}, err
	}
	if len(existing) > 0 {
		return Stats{}, model.Conflictf("destination %s already holds %d event(s)", dst.Backend(), len(existing))
	}

	events, err := src.ListEvents(ctx, all)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	err = dst.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		stats = Stats{}
		for _, e := range events {
			if err := copyEvent(ctx, src, tx, e, &stats); err != nil {
				return err
			}
			o.logger.Info().Int64("event_id", e.ID).Str("name", e.Name).Msg("event copied")
		}
		return tx.SyncSequences(ctx)
	})
	if err != nil {
		return Stats{}, err
	}

	o.logger.Info().
		Str("from", src.Backend()).
		Str("to", dst.Backend()).
		Int("events", stats.Events).
		Int("sessions", stats.Sessions).
		Int("member_snapshots", stats.MemberSnapshots).
		Int("game_snapshots", stats.GameSnapshots).
		Msg("copy complete")
	return stats, nil
}

func copyEvent(ctx context.Context, src, tx store.Store, e model.Event, stats *Stats) error {
	if err := tx.CreateEvent(ctx, &e); err != nil {
		return err
	}
	stats.Events++

	sessions, err := src.ListSessions(ctx, store.SessionFilter{EventID: e.ID})
	if err != nil {
		return err
	}
	for i := range sessions {
		if err := tx.InsertSession(ctx, &sessions[i]); err != nil {
			return err
		}
	}
	stats.Sessions += len(sessions)

	members, err := src.MemberSnapshots(ctx, e.ID, model.Range{})
	if err != nil {
		return err
	}
	for i := range members {
		if err := tx.InsertMemberSnapshot(ctx, &members[i]); err != nil {
			return err
		}
	}
	stats.MemberSnapshots += len(members)

	games, err := src.GameSnapshotsSince(ctx, e.ID, time.Time{})
	if err != nil {
		return err
	}
	for i := range games {
		if err := tx.InsertGameSnapshot(ctx, &games[i]); err != nil {
			return err
		}
	}
	stats.GameSnapshots += len(games)
	return nil
}
