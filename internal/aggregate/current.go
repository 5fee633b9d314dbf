package aggregate

import (
	"context"
	"sort"
	"time"

	"github.com/graaaaa/playpulse/internal/model"
)

// GamePlayers is one row of the currently-playing list.
type GamePlayers struct {
	Game    string `json:"game"`
	Players int    `json:"players"`
}

// CurrentState is the live view of an event.
type CurrentState struct {
	EventID          int64                 `json:"event_id"`
	LatestMember     *model.MemberSnapshot `json:"latest_member_snapshot"`
	CurrentlyPlaying []GamePlayers         `json:"currently_playing"`
	Source           string                `json:"source"`
	AsOf             time.Time             `json:"as_of"`
}

// CurrentState returns the newest member snapshot and what is being played
// right now, from open sessions or, when there are none, fresh game snapshots.
func (e *Engine) CurrentState(ctx context.Context, eventID int64) (CurrentState, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	now := e.clock.Now()
	latest, err := e.store.LatestMemberSnapshot(ctx, eventID)
	if err != nil {
		return CurrentState{}, err
	}

	res, err := e.currentlyPlaying(eventID, now).Run(ctx)
	if err != nil {
		return CurrentState{}, err
	}

	return CurrentState{
		EventID:          eventID,
		LatestMember:     latest,
		CurrentlyPlaying: res.Value,
		Source:           res.Source,
		AsOf:             now,
	}, nil
}

func (e *Engine) currentlyPlaying(eventID int64, now time.Time) TwoTier[[]GamePlayers] {
	return TwoTier[[]GamePlayers]{
		View: "current",
		Primary: Tier[[]GamePlayers]{
			Name: SourceSessions,
			Fetch: func(ctx context.Context) ([]GamePlayers, error) {
				open, err := e.open.ListOpen(ctx, eventID, e.cfg.StaleAfter)
				if err != nil {
					return nil, err
				}
				return playingFromSessions(open), nil
			},
		},
		Fallback: Tier[[]GamePlayers]{
			Name: SourceSnapshots,
			Fetch: func(ctx context.Context) ([]GamePlayers, error) {
				recent, err := e.store.GameSnapshotsSince(ctx, eventID, now.Add(-e.cfg.FreshnessWindow))
				if err != nil {
					return nil, err
				}
				return playingFromSnapshots(recent), nil
			},
		},
		Sufficient: nonEmpty[GamePlayers],
	}
}

// playingFromSessions counts distinct users per game.
func playingFromSessions(open []model.Session) []GamePlayers {
	users := map[string]map[string]struct{}{}
	for _, s := range open {
		if users[s.GameName] == nil {
			users[s.GameName] = map[string]struct{}{}
		}
		users[s.GameName][s.UserID] = struct{}{}
	}

	out := make([]GamePlayers, 0, len(users))
	for game, set := range users {
		out = append(out, GamePlayers{Game: game, Players: len(set)})
	}
	sortPlaying(out)
	return out
}

// playingFromSnapshots keeps the newest sample per game. Input is newest first.
func playingFromSnapshots(recent []model.GameSnapshot) []GamePlayers {
	seen := map[string]bool{}
	out := []GamePlayers{}
	for _, g := range recent {
		if seen[g.GameName] {
			continue
		}
		seen[g.GameName] = true
		if g.PlayerCount > 0 {
			out = append(out, GamePlayers{Game: g.GameName, Players: g.PlayerCount})
		}
	}
	sortPlaying(out)
	return out
}

func sortPlaying(rows []GamePlayers) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Players != rows[j].Players {
			return rows[i].Players > rows[j].Players
		}
		return rows[i].Game < rows[j].Game
	})
}
