package aggregate

import (
	"context"
	"sort"
	"time"

	"github.com/graaaaa/playpulse/internal/model"
	"github.com/graaaaa/playpulse/internal/store"
)

// RecentActivity projects the sessions touching [now-lookback, now] into
// started and stopped entries, newest first. A non-positive lookback uses the
// configured default.
func (e *Engine) RecentActivity(ctx context.Context, eventID int64, lookback time.Duration, limit int) ([]model.Activity, error) {
	if lookback <= 0 {
		lookback = e.cfg.ActivityLookback
	}
	limit = clampLimit(limit, DefaultActivityLimit, MaxActivityLimit)

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	now := e.clock.Now()
	window := model.Range{Start: now.Add(-lookback), End: now}

	// Sessions come back ordered by their latest transition, so the newest
	// limit sessions cover the newest limit entries.
	sessions, err := e.store.ListSessions(ctx, store.SessionFilter{
		EventID:      eventID,
		TouchedSince: window.Start,
		Newest:       true,
		Limit:        limit,
	})
	if err != nil {
		return nil, err
	}

	return projectActivity(sessions, window, limit), nil
}

type activityEntry struct {
	model.Activity
	sessionID int64
}

func projectActivity(sessions []model.Session, window model.Range, limit int) []model.Activity {
	entries := make([]activityEntry, 0, 2*len(sessions))
	for _, s := range sessions {
		if inWindow(window, s.StartTime) {
			entries = append(entries, activityEntry{
				Activity: model.Activity{
					UserID:    s.UserID,
					GameName:  s.GameName,
					Action:    model.ActionStarted,
					Timestamp: s.StartTime,
				},
				sessionID: s.ID,
			})
		}
		if s.EndTime != nil && inWindow(window, *s.EndTime) {
			entries = append(entries, activityEntry{
				Activity: model.Activity{
					UserID:          s.UserID,
					GameName:        s.GameName,
					Action:          model.ActionStopped,
					Timestamp:       *s.EndTime,
					DurationMinutes: s.DurationMinutes,
				},
				sessionID: s.ID,
			})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		if a.Action != b.Action {
			return a.Action == model.ActionStopped
		}
		return a.sessionID > b.sessionID
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]model.Activity, len(entries))
	for i, e := range entries {
		out[i] = e.Activity
	}
	return out
}

// inWindow includes both bounds so a transition recorded at the query
// instant is reported.
func inWindow(w model.Range, t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}
