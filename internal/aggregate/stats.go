package aggregate

import (
	"context"
	"sort"
	"time"

	"github.com/graaaaa/playpulse/internal/model"
	"github.com/graaaaa/playpulse/internal/store"
)

// TopGame is the most-played game of an event.
type TopGame struct {
	Game         string `json:"game"`
	SessionCount int    `json:"session_count"`
	PeakPlayers  int    `json:"peak_players"`
}

// EventStats is the one-shot summary of an event.
type EventStats struct {
	EventID       int64    `json:"event_id"`
	EventName     string   `json:"event_name"`
	UniqueGames   int      `json:"unique_games"`
	TotalSessions int      `json:"total_sessions"`
	PeakOnline    int      `json:"peak_online"`
	AvgOnline     float64  `json:"avg_online"`
	TotalHours    float64  `json:"total_hours"`
	TopGame       *TopGame `json:"top_game"`
}

// EventStats summarizes an event. The unique game count is the larger of the
// session-derived and snapshot-derived counts, since either source alone can
// undercount.
func (e *Engine) EventStats(ctx context.Context, eventID int64) (EventStats, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	event, err := e.store.GetEvent(ctx, eventID)
	if err != nil {
		return EventStats{}, err
	}
	sessions, err := e.store.SessionSummary(ctx, eventID)
	if err != nil {
		return EventStats{}, err
	}
	members, err := e.store.MemberSnapshotSummary(ctx, eventID)
	if err != nil {
		return EventStats{}, err
	}
	gameSessions, err := e.store.GameSessionTotals(ctx, eventID, model.Range{})
	if err != nil {
		return EventStats{}, err
	}
	gameSnapshots, err := e.store.GameSnapshotTotals(ctx, eventID, model.Range{})
	if err != nil {
		return EventStats{}, err
	}
	open, err := e.store.ListSessions(ctx, store.SessionFilter{EventID: eventID, OpenOnly: true})
	if err != nil {
		return EventStats{}, err
	}

	now := e.clock.Now()
	liveByGame := map[string]float64{}
	var live float64
	for _, s := range open {
		m := liveMinutes(s, now, event.EndTime)
		liveByGame[s.GameName] += m
		live += m
	}

	stats := EventStats{
		EventID:       eventID,
		EventName:     event.Name,
		UniqueGames:   max(sessions.DistinctGames, len(gameSnapshots)),
		TotalSessions: sessions.TotalSessions,
		PeakOnline:    members.PeakOnline,
		AvgOnline:     round1(members.AvgOnline),
		TotalHours:    round2((float64(sessions.ClosedMinutes) + live) / 60),
	}

	snapshotPeak := map[string]int{}
	for _, g := range gameSnapshots {
		snapshotPeak[g.GameName] = g.MaxPlayers
	}

	if top, ok := pickTopSessionGame(gameSessions, liveByGame); ok {
		overlap, err := e.sessionOverlapPeak(ctx, eventID, top.GameName, now)
		if err != nil {
			return EventStats{}, err
		}
		stats.TopGame = &TopGame{
			Game:         top.GameName,
			SessionCount: top.SessionCount,
			PeakPlayers:  max(snapshotPeak[top.GameName], overlap),
		}
	} else if top, ok := pickTopSnapshotGame(gameSnapshots); ok {
		stats.TopGame = &TopGame{Game: top.GameName, PeakPlayers: top.MaxPlayers}
	}

	return stats, nil
}

// pickTopSessionGame picks the game with the most sessions, then the most
// minutes, then the smallest name.
func pickTopSessionGame(totals []store.GameSessionTotal, live map[string]float64) (store.GameSessionTotal, bool) {
	if len(totals) == 0 {
		return store.GameSessionTotal{}, false
	}
	minutes := func(t store.GameSessionTotal) float64 {
		return float64(t.ClosedMinutes) + live[t.GameName]
	}
	best := totals[0]
	for _, t := range totals[1:] {
		switch {
		case t.SessionCount != best.SessionCount:
			if t.SessionCount > best.SessionCount {
				best = t
			}
		case minutes(t) != minutes(best):
			if minutes(t) > minutes(best) {
				best = t
			}
		case t.GameName < best.GameName:
			best = t
		}
	}
	return best, true
}

func pickTopSnapshotGame(totals []store.GameSnapshotTotal) (store.GameSnapshotTotal, bool) {
	if len(totals) == 0 {
		return store.GameSnapshotTotal{}, false
	}
	best := totals[0]
	for _, t := range totals[1:] {
		switch {
		case t.Samples != best.Samples:
			if t.Samples > best.Samples {
				best = t
			}
		case t.MaxPlayers != best.MaxPlayers:
			if t.MaxPlayers > best.MaxPlayers {
				best = t
			}
		case t.GameName < best.GameName:
			best = t
		}
	}
	return best, true
}

// sessionOverlapPeak returns the largest number of sessions of game that were
// open at the same instant. Open sessions run until now.
func (e *Engine) sessionOverlapPeak(ctx context.Context, eventID int64, game string, now time.Time) (int, error) {
	sessions, err := e.store.ListSessions(ctx, store.SessionFilter{EventID: eventID, GameName: game})
	if err != nil {
		return 0, err
	}
	return overlapPeak(sessions, now), nil
}

type edge struct {
	at    time.Time
	delta int
}

func overlapPeak(sessions []model.Session, now time.Time) int {
	edges := make([]edge, 0, 2*len(sessions))
	for _, s := range sessions {
		end := now
		if s.EndTime != nil {
			end = *s.EndTime
		}
		if !end.After(s.StartTime) {
			continue
		}
		edges = append(edges, edge{s.StartTime, +1}, edge{end, -1})
	}

	// Ends sort before starts at the same instant: back-to-back sessions
	// do not overlap.
	sort.Slice(edges, func(i, j int) bool {
		if !edges[i].at.Equal(edges[j].at) {
			return edges[i].at.Before(edges[j].at)
		}
		return edges[i].delta < edges[j].delta
	})

	var cur, peak int
	for _, ed := range edges {
		cur += ed.delta
		peak = max(peak, cur)
	}
	return peak
}
