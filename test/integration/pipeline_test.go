//go:build integration

package integration

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graaaaa/playpulse/internal/aggregate"
	"github.com/graaaaa/playpulse/internal/app"
	"github.com/graaaaa/playpulse/internal/jobs"
	"github.com/graaaaa/playpulse/internal/model"
	"github.com/graaaaa/playpulse/internal/testutil"
)

type staticSnapshot struct{ snap model.PresenceSnapshot }

func (s staticSnapshot) Snapshot(context.Context) (model.PresenceSnapshot, error) { return s.snap, nil }

// playEvening ingests u1 playing Chess for 10 minutes and u2 for 20.
func playEvening(t *testing.T, a *TestApp) {
	t0 := a.Clock.Now()
	a.Ingest(t,
		change("u1", "Chess", model.ActionStarted, t0),
		change("u2", "Chess", model.ActionStarted, t0),
	)
	a.Clock.Advance(10 * time.Minute)
	a.Ingest(t, change("u1", "Chess", model.ActionStopped, a.Clock.Now()))
	a.Clock.Advance(10 * time.Minute)
	a.Ingest(t, change("u2", "Chess", model.ActionStopped, a.Clock.Now()))
}

func runPipeline(t *testing.T, a *TestApp) {
	t0 := a.Clock.Now()
	a.Ingest(t,
		change("u1", "Chess", model.ActionStarted, t0),
		change("u2", "Chess", model.ActionStarted, t0),
		change("u3", "Go", model.ActionStarted, t0),
	)

	resp := a.do(t, http.MethodGet, "/api/current", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	current := decode[aggregate.CurrentState](t, resp)
	assert.Equal(t, aggregate.SourceSessions, current.Source)
	assert.Equal(t, []aggregate.GamePlayers{{Game: "Chess", Players: 2}, {Game: "Go", Players: 1}}, current.CurrentlyPlaying)

	a.Clock.Advance(10 * time.Minute)
	a.Ingest(t, change("u1", "Chess", model.ActionStopped, a.Clock.Now()))
	a.Clock.Advance(10 * time.Minute)
	a.Ingest(t,
		change("u2", "Chess", model.ActionStopped, a.Clock.Now()),
		change("u3", "Go", model.ActionStopped, a.Clock.Now()),
	)

	resp = a.do(t, http.MethodGet, "/api/top-games", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	top := decode[aggregate.TopGames](t, resp)
	require.Len(t, top.Games, 2)
	assert.Equal(t, aggregate.GameStat{Game: "Chess", SessionCount: 2, TotalMinutes: 30, AvgMinutes: 15, UniquePlayers: 2}, top.Games[0])
	assert.Equal(t, "Go", top.Games[1].Game)
	assert.Equal(t, 20, top.Games[1].TotalMinutes)

	resp = a.do(t, http.MethodGet, "/api/recent-activity", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	feed := decode[app.RecentActivityResult](t, resp)
	assert.Len(t, feed.Activity, 6)
}

func TestPipeline_SessionsToDashboard(t *testing.T) {
	runPipeline(t, NewTestApp(t))
}

func TestPipeline_WithRedisLock(t *testing.T) {
	runPipeline(t, NewTestApp(t, WithRedisLock()))
}

func TestPipeline_SnapshotFallbackAndHistory(t *testing.T) {
	a := NewTestApp(t)
	logger, _ := testutil.NewLogger()

	poller := jobs.NewSnapshotPoller(staticSnapshot{snap: model.PresenceSnapshot{
		GuildScope:    scope,
		TotalMembers:  40,
		OnlineMembers: 12,
		PlayingGames:  []model.GameCount{{Name: "Chess", Count: 4}},
	}}, a.Recorder, a.Registry, jobs.PollerConfig{Scope: scope}, jobs.WithLogger(logger))
	require.NoError(t, poller.PollOnce(context.Background()))

	a.Clock.Advance(time.Minute)
	resp := a.do(t, http.MethodGet, "/api/current", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	current := decode[aggregate.CurrentState](t, resp)
	assert.Equal(t, aggregate.SourceSnapshots, current.Source)
	require.NotNil(t, current.LatestMember)
	assert.Equal(t, 12, current.LatestMember.OnlineMembers)
	assert.Equal(t, []aggregate.GamePlayers{{Game: "Chess", Players: 4}}, current.CurrentlyPlaying)

	resp = a.do(t, http.MethodGet, "/api/member-history", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decode[app.MemberHistoryResult](t, resp)
	require.Len(t, history.Snapshots, 1)
	assert.Equal(t, 40, history.Snapshots[0].TotalMembers)

	// Past the freshness window nothing is reported as live.
	a.Clock.Advance(10 * time.Minute)
	resp = a.do(t, http.MethodGet, "/api/current", "")
	current = decode[aggregate.CurrentState](t, resp)
	assert.Equal(t, aggregate.SourceNone, current.Source)
	assert.Empty(t, current.CurrentlyPlaying)
}

func TestPipeline_ActivationRoutesNewData(t *testing.T) {
	a := NewTestApp(t)
	playEvening(t, a)

	body := fmt.Sprintf(`{"name":"Finals","start_time":%q,"end_time":%q}`,
		a.Clock.Now().Format(time.RFC3339), a.Clock.Now().Add(6*time.Hour).Format(time.RFC3339))
	resp := a.do(t, http.MethodPost, "/api/events", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	finals := decode[model.Event](t, resp)

	resp = a.do(t, http.MethodPost, fmt.Sprintf("/api/events/%d/activate", finals.ID), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	a.Ingest(t, change("u9", "Go", model.ActionStarted, a.Clock.Now()))

	resp = a.do(t, http.MethodGet, "/api/current", "")
	current := decode[aggregate.CurrentState](t, resp)
	assert.Equal(t, finals.ID, current.EventID)
	assert.Equal(t, []aggregate.GamePlayers{{Game: "Go", Players: 1}}, current.CurrentlyPlaying)

	resp = a.do(t, http.MethodGet, fmt.Sprintf("/api/events/%d/stats", a.Event.ID), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[aggregate.EventStats](t, resp)
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 0.5, stats.TotalHours)
	require.NotNil(t, stats.TopGame)
	assert.Equal(t, "Chess", stats.TopGame.Game)

	resp = a.do(t, http.MethodGet, fmt.Sprintf("/api/top-games?event=%d", a.Event.ID), "")
	top := decode[aggregate.TopGames](t, resp)
	require.Len(t, top.Games, 1)
	assert.Equal(t, "Chess", top.Games[0].Game)

	// The previous event is no longer active and can be removed with its data.
	resp = a.do(t, http.MethodDelete, fmt.Sprintf("/api/events/%d", a.Event.ID), "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = a.do(t, http.MethodGet, fmt.Sprintf("/api/events/%d/stats", a.Event.ID), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPipeline_ReaperClosesStaleSessions(t *testing.T) {
	a := NewTestApp(t)
	a.Ingest(t, change("u1", "Chess", model.ActionStarted, a.Clock.Now()))

	a.Clock.Advance(8*time.Hour + time.Minute)
	n, err := a.Tracker.ReapStale(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	resp := a.do(t, http.MethodGet, "/api/recent-activity?lookback=24h", "")
	feed := decode[app.RecentActivityResult](t, resp)
	require.Len(t, feed.Activity, 2)
	assert.Equal(t, model.ActionStopped, feed.Activity[0].Action)
	require.NotNil(t, feed.Activity[0].DurationMinutes)
	assert.Equal(t, 481, *feed.Activity[0].DurationMinutes)
}
