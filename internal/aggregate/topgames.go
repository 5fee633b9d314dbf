package aggregate

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/graaaaa/playpulse/internal/model"
	"github.com/graaaaa/playpulse/internal/store"
)

// GameStat is one leaderboard row. Rows with Estimated set come from game
// snapshots: TotalMinutes is samples times the sampling interval and
// UniquePlayers is the highest player count observed, so both are
// approximations.
type GameStat struct {
	Game          string  `json:"game"`
	SessionCount  int     `json:"session_count"`
	TotalMinutes  int     `json:"total_minutes"`
	AvgMinutes    float64 `json:"avg_minutes"`
	UniquePlayers int     `json:"unique_players"`
	Estimated     bool    `json:"estimated"`
}

// TopGames is the leaderboard view.
type TopGames struct {
	EventID int64       `json:"event_id"`
	Range   model.Range `json:"range"`
	Games   []GameStat  `json:"games"`
	Source  string      `json:"source"`
}

// TopGames ranks the games played in rng by total minutes.
func (e *Engine) TopGames(ctx context.Context, eventID int64, rng model.Range, limit int) (TopGames, error) {
	if err := checkRange(rng); err != nil {
		return TopGames{}, err
	}
	limit = clampLimit(limit, DefaultTopGamesLimit, MaxTopGamesLimit)

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	res, err := e.topGames(eventID, rng, e.clock.Now()).Run(ctx)
	if err != nil {
		return TopGames{}, err
	}

	games := res.Value
	if len(games) > limit {
		games = games[:limit]
	}
	return TopGames{EventID: eventID, Range: rng, Games: games, Source: res.Source}, nil
}

func (e *Engine) topGames(eventID int64, rng model.Range, now time.Time) TwoTier[[]GameStat] {
	return TwoTier[[]GameStat]{
		View: "top_games",
		Primary: Tier[[]GameStat]{
			Name: SourceSessions,
			Fetch: func(ctx context.Context) ([]GameStat, error) {
				return e.topGamesFromSessions(ctx, eventID, rng, now)
			},
		},
		Fallback: Tier[[]GameStat]{
			Name: SourceSnapshots,
			Fetch: func(ctx context.Context) ([]GameStat, error) {
				totals, err := e.store.GameSnapshotTotals(ctx, eventID, rng)
				if err != nil {
					return nil, err
				}
				return estimateFromSnapshots(totals, e.cfg.SamplingInterval), nil
			},
		},
		Sufficient: anyPositiveMinutes,
	}
}

func (e *Engine) topGamesFromSessions(ctx context.Context, eventID int64, rng model.Range, now time.Time) ([]GameStat, error) {
	totals, err := e.store.GameSessionTotals(ctx, eventID, rng)
	if err != nil {
		return nil, err
	}
	open, err := e.store.ListSessions(ctx, store.SessionFilter{EventID: eventID, Started: rng, OpenOnly: true})
	if err != nil {
		return nil, err
	}

	live := map[string]float64{}
	for _, s := range open {
		live[s.GameName] += liveMinutes(s, now, rng.End)
	}

	out := make([]GameStat, 0, len(totals))
	for _, t := range totals {
		minutes := float64(t.ClosedMinutes) + live[t.GameName]
		stat := GameStat{
			Game:          t.GameName,
			SessionCount:  t.SessionCount,
			TotalMinutes:  int(math.Round(minutes)),
			UniquePlayers: t.UniquePlayers,
		}
		if t.SessionCount > 0 {
			stat.AvgMinutes = round1(minutes / float64(t.SessionCount))
		}
		out = append(out, stat)
	}
	sortGameStats(out)
	return out, nil
}

func estimateFromSnapshots(totals []store.GameSnapshotTotal, interval time.Duration) []GameStat {
	perSample := interval.Minutes()
	out := make([]GameStat, 0, len(totals))
	for _, t := range totals {
		if t.Samples == 0 {
			continue
		}
		out = append(out, GameStat{
			Game:          t.GameName,
			TotalMinutes:  int(math.Round(float64(t.Samples) * perSample)),
			UniquePlayers: t.MaxPlayers,
			Estimated:     true,
		})
	}
	sortGameStats(out)
	return out
}

func anyPositiveMinutes(rows []GameStat) bool {
	for _, r := range rows {
		if r.TotalMinutes > 0 {
			return true
		}
	}
	return false
}

func sortGameStats(rows []GameStat) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.TotalMinutes != b.TotalMinutes {
			return a.TotalMinutes > b.TotalMinutes
		}
		if a.SessionCount != b.SessionCount {
			return a.SessionCount > b.SessionCount
		}
		return a.Game < b.Game
	})
}
