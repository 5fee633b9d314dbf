// Package storetest holds the behavioural contract every store.Store backend
// must satisfy. Backend packages run it from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graaaaa/playpulse/internal/model"
	"github.com/graaaaa/playpulse/internal/store"
)

// Opener returns an empty store. The store is closed by the caller's cleanup.
type Opener func(t *testing.T) store.Store

// Base is the reference instant used by contract fixtures.
var Base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Run executes the contract against stores produced by open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, st store.Store)
	}{
		{"EventCRUD", testEventCRUD},
		{"ListEventsOrderAndHidden", testListEvents},
		{"SetActiveEventSwitches", testSetActiveEvent},
		{"SetActiveEventWrongScope", testSetActiveWrongScope},
		{"LatestEvent", testLatestEvent},
		{"DeleteEventCascades", testDeleteEventCascades},
		{"SessionLifecycle", testSessionLifecycle},
		{"OpenSessionAcrossEvents", testOpenSessionAcrossEvents},
		{"OneOpenSessionPerPair", testOneOpenSessionPerPair},
		{"LockScope", testLockScope},
		{"ExplicitIDs", testExplicitIDs},
		{"ListSessionsFilters", testListSessions},
		{"GameSessionTotals", testGameSessionTotals},
		{"SessionSummary", testSessionSummary},
		{"MemberSnapshots", testMemberSnapshots},
		{"GameSnapshots", testGameSnapshots},
		{"InTxRollback", testInTxRollback},
		{"InTxNested", testInTxNested},
		{"TimestampsRoundTrip", testTimestampsRoundTrip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

// NewEvent inserts an event spanning [Base, Base+24h) in scope.
func NewEvent(t *testing.T, st store.Store, scope, name string) model.Event {
	t.Helper()
	e := model.Event{
		Name:         name,
		StartTime:    Base,
		EndTime:      Base.Add(24 * time.Hour),
		Timezone:     "UTC",
		GuildScopeID: scope,
		CreatedAt:    Base,
		UpdatedAt:    Base,
	}
	require.NoError(t, st.CreateEvent(context.Background(), &e))
	require.NotZero(t, e.ID)
	return e
}

func closedSession(user, game string, eventID int64, start time.Time, minutes int) *model.Session {
	end := start.Add(time.Duration(minutes) * time.Minute)
	return &model.Session{
		UserID:          user,
		GameName:        game,
		StartTime:       start,
		EndTime:         &end,
		DurationMinutes: &minutes,
		EventID:         eventID,
	}
}

func testEventCRUD(t *testing.T, st store.Store) {
	ctx := context.Background()
	e := NewEvent(t, st, "g1", "Spring Cup")

	got, err := st.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Spring Cup", got.Name)
	assert.True(t, got.StartTime.Equal(Base))
	assert.Equal(t, "g1", got.GuildScopeID)
	assert.False(t, got.IsActive)

	got.Name = "Spring Cup 2"
	got.IsHidden = true
	got.UpdatedAt = Base.Add(time.Hour)
	require.NoError(t, st.UpdateEvent(ctx, got))

	got2, err := st.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Spring Cup 2", got2.Name)
	assert.True(t, got2.IsHidden)
	assert.True(t, got2.UpdatedAt.Equal(Base.Add(time.Hour)))

	_, err = st.GetEvent(ctx, e.ID+1000)
	assert.True(t, errors.Is(err, model.ErrNotFound))

	got2.ID = e.ID + 1000
	assert.True(t, errors.Is(st.UpdateEvent(ctx, got2), model.ErrNotFound))
}

func testListEvents(t *testing.T, st store.Store) {
	ctx := context.Background()
	older := NewEvent(t, st, "g1", "older")
	newer := model.Event{
		Name: "newer", StartTime: Base.Add(48 * time.Hour), EndTime: Base.Add(72 * time.Hour),
		GuildScopeID: "g1", IsHidden: true, CreatedAt: Base, UpdatedAt: Base,
	}
	require.NoError(t, st.CreateEvent(ctx, &newer))
	NewEvent(t, st, "g2", "other scope")

	visible, err := st.ListEvents(ctx, store.EventFilter{Scope: "g1"})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, older.ID, visible[0].ID)

	all, err := st.ListEvents(ctx, store.EventFilter{Scope: "g1", IncludeHidden: true})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, newer.ID, all[0].ID, "newest start first")

	everywhere, err := st.ListEvents(ctx, store.EventFilter{IncludeHidden: true})
	require.NoError(t, err)
	assert.Len(t, everywhere, 3)
}

func testSetActiveEvent(t *testing.T, st store.Store) {
	ctx := context.Background()
	e1 := NewEvent(t, st, "g1", "E1")
	e2 := NewEvent(t, st, "g1", "E2")

	active, err := st.ActiveEvent(ctx, "g1")
	require.NoError(t, err)
	assert.Nil(t, active)

	require.NoError(t, st.SetActiveEvent(ctx, "g1", e1.ID, Base))
	require.NoError(t, st.SetActiveEvent(ctx, "g1", e2.ID, Base.Add(time.Minute)))

	active, err = st.ActiveEvent(ctx, "g1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, e2.ID, active.ID)

	got1, err := st.GetEvent(ctx, e1.ID)
	require.NoError(t, err)
	assert.False(t, got1.IsActive)

	// Re-activating the active event is allowed.
	require.NoError(t, st.SetActiveEvent(ctx, "g1", e2.ID, Base.Add(2*time.Minute)))

	err = st.SetActiveEvent(ctx, "g1", e2.ID+1000, Base)
	assert.True(t, errors.Is(err, model.ErrNotFound))

	// A failed activation rolls back the deactivation.
	active, err = st.ActiveEvent(ctx, "g1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, e2.ID, active.ID)
}

func testSetActiveWrongScope(t *testing.T, st store.Store) {
	ctx := context.Background()
	e := NewEvent(t, st, "g1", "E")
	err := st.SetActiveEvent(ctx, "g2", e.ID, Base)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func testLatestEvent(t *testing.T, st store.Store) {
	ctx := context.Background()

	latest, err := st.LatestEvent(ctx, "g1")
	require.NoError(t, err)
	assert.Nil(t, latest)

	NewEvent(t, st, "g1", "first")
	second := model.Event{
		Name: "second", StartTime: Base, EndTime: Base.Add(time.Hour),
		GuildScopeID: "g1", CreatedAt: Base.Add(time.Minute), UpdatedAt: Base.Add(time.Minute),
	}
	require.NoError(t, st.CreateEvent(ctx, &second))

	latest, err = st.LatestEvent(ctx, "g1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)

	all, err := st.ListEvents(ctx, store.EventFilter{Scope: "g1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func testDeleteEventCascades(t *testing.T, st store.Store) {
	ctx := context.Background()
	e := NewEvent(t, st, "g1", "doomed")
	keep := NewEvent(t, st, "g1", "keep")

	require.NoError(t, st.InsertSession(ctx, closedSession("u1", "Chess", e.ID, Base, 10)))
	require.NoError(t, st.InsertSession(ctx, closedSession("u1", "Chess", keep.ID, Base, 10)))
	require.NoError(t, st.InsertMemberSnapshot(ctx, &model.MemberSnapshot{Timestamp: Base, TotalMembers: 10, OnlineMembers: 5, EventID: e.ID}))
	require.NoError(t, st.InsertGameSnapshot(ctx, &model.GameSnapshot{Timestamp: Base, GameName: "Chess", PlayerCount: 1, EventID: e.ID}))

	require.NoError(t, st.DeleteEvent(ctx, e.ID))

	_, err := st.GetEvent(ctx, e.ID)
	assert.True(t, errors.Is(err, model.ErrNotFound))

	sessions, err := st.ListSessions(ctx, store.SessionFilter{})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, keep.ID, sessions[0].EventID)

	latest, err := st.LatestMemberSnapshot(ctx, e.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	assert.True(t, errors.Is(st.DeleteEvent(ctx, e.ID), model.ErrNotFound))
}

func testSessionLifecycle(t *testing.T, st store.Store) {
	ctx := context.Background()
	e := NewEvent(t, st, "g1", "E")

	open, err := st.FindOpenSession(ctx, "u1", "Chess")
	require.NoError(t, err)
	assert.Nil(t, open)

	s := &model.Session{UserID: "u1", GameName: "Chess", StartTime: Base, EventID: e.ID}
	require.NoError(t, st.InsertSession(ctx, s))
	require.NotZero(t, s.ID)

	open, err = st.FindOpenSession(ctx, "u1", "Chess")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, s.ID, open.ID)
	assert.True(t, open.Open())
	assert.Nil(t, open.DurationMinutes)

	// Other game: not matched.
	other, err := st.FindOpenSession(ctx, "u1", "Go")
	require.NoError(t, err)
	assert.Nil(t, other)

	closed, err := st.CloseSession(ctx, s.ID, Base.Add(10*time.Minute), 10)
	require.NoError(t, err)
	assert.True(t, closed)

	closed, err = st.CloseSession(ctx, s.ID, Base.Add(20*time.Minute), 20)
	require.NoError(t, err)
	assert.False(t, closed, "second close is a no-op")

	sessions, err := st.ListSessions(ctx, store.SessionFilter{EventID: e.ID})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.NotNil(t, sessions[0].EndTime)
	assert.True(t, sessions[0].EndTime.Equal(Base.Add(10*time.Minute)))
	require.NotNil(t, sessions[0].DurationMinutes)
	assert.Equal(t, 10, *sessions[0].DurationMinutes)
}

func testOpenSessionAcrossEvents(t *testing.T, st store.Store) {
	ctx := context.Background()
	old := NewEvent(t, st, "g1", "old")
	NewEvent(t, st, "g1", "new")

	s := &model.Session{UserID: "u1", GameName: "Chess", StartTime: Base, EventID: old.ID}
	require.NoError(t, st.InsertSession(ctx, s))

	open, err := st.FindOpenSession(ctx, "u1", "Chess")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, s.ID, open.ID)
	assert.Equal(t, old.ID, open.EventID)
}

func testOneOpenSessionPerPair(t *testing.T, st store.Store) {
	ctx := context.Background()
	e1 := NewEvent(t, st, "g1", "E1")
	e2 := NewEvent(t, st, "g1", "E2")

	require.NoError(t, st.InsertSession(ctx, &model.Session{UserID: "u1", GameName: "Chess", StartTime: Base, EventID: e1.ID}))

	err := st.InsertSession(ctx, &model.Session{UserID: "u1", GameName: "Chess", StartTime: Base.Add(time.Minute), EventID: e2.ID})
	assert.Error(t, err, "second open session for the pair")

	// Closed rows and other pairs are unaffected.
	require.NoError(t, st.InsertSession(ctx, closedSession("u1", "Chess", e2.ID, Base, 5)))
	require.NoError(t, st.InsertSession(ctx, &model.Session{UserID: "u1", GameName: "Go", StartTime: Base, EventID: e2.ID}))
}

func testLockScope(t *testing.T, st store.Store) {
	ctx := context.Background()
	assert.Error(t, st.LockScope(ctx, "g1"), "outside a transaction")

	// Each writer creates an event only when the scope is empty; the scope
	// lock keeps the check and the insert together.
	const writers = 4
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- st.InTx(ctx, func(ctx context.Context, tx store.Store) error {
				if err := tx.LockScope(ctx, "g1"); err != nil {
					return err
				}
				existing, err := tx.ListEvents(ctx, store.EventFilter{Scope: "g1", IncludeHidden: true})
				if err != nil || len(existing) > 0 {
					return err
				}
				e := model.Event{
					Name: fmt.Sprintf("writer-%d", i), StartTime: Base, EndTime: Base.Add(time.Hour),
					GuildScopeID: "g1", CreatedAt: Base, UpdatedAt: Base,
				}
				return tx.CreateEvent(ctx, &e)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	events, err := st.ListEvents(ctx, store.EventFilter{Scope: "g1", IncludeHidden: true})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func testExplicitIDs(t *testing.T, st store.Store) {
	ctx := context.Background()

	e := model.Event{
		ID: 42, Name: "imported", StartTime: Base, EndTime: Base.Add(time.Hour),
		GuildScopeID: "g1", CreatedAt: Base, UpdatedAt: Base,
	}
	s := closedSession("u1", "Chess", 42, Base, 10)
	s.ID = 7
	require.NoError(t, st.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.CreateEvent(ctx, &e); err != nil {
			return err
		}
		if err := tx.InsertSession(ctx, s); err != nil {
			return err
		}
		return tx.SyncSequences(ctx)
	}))
	assert.Equal(t, int64(42), e.ID)
	assert.Equal(t, int64(7), s.ID)

	got, err := st.GetEvent(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "imported", got.Name)

	// Generated ids continue after the explicit ones.
	next := NewEvent(t, st, "g1", "next")
	assert.Greater(t, next.ID, int64(42))
	later := closedSession("u1", "Chess", next.ID, Base, 5)
	require.NoError(t, st.InsertSession(ctx, later))
	assert.Greater(t, later.ID, int64(7))
}

func testListSessions(t *testing.T, st store.Store) {
	ctx := context.Background()
	e := NewEvent(t, st, "g1", "E")

	require.NoError(t, st.InsertSession(ctx, closedSession("u1", "Chess", e.ID, Base, 30)))
	require.NoError(t, st.InsertSession(ctx, closedSession("u2", "Go", e.ID, Base.Add(2*time.Hour), 5)))
	require.NoError(t, st.InsertSession(ctx, &model.Session{UserID: "u3", GameName: "Chess", StartTime: Base.Add(3 * time.Hour), EventID: e.ID}))

	open, err := st.ListSessions(ctx, store.SessionFilter{EventID: e.ID, OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "u3", open[0].UserID)

	chess, err := st.ListSessions(ctx, store.SessionFilter{EventID: e.ID, GameName: "Chess"})
	require.NoError(t, err)
	assert.Len(t, chess, 2)

	u2, err := st.ListSessions(ctx, store.SessionFilter{EventID: e.ID, UserID: "u2"})
	require.NoError(t, err)
	assert.Len(t, u2, 1)

	ranged, err := st.ListSessions(ctx, store.SessionFilter{
		EventID: e.ID,
		Started: model.Range{Start: Base.Add(time.Hour), End: Base.Add(3 * time.Hour)},
	})
	require.NoError(t, err)
	require.Len(t, ranged, 1, "end bound is exclusive")
	assert.Equal(t, "u2", ranged[0].UserID)

	// u1 ended at Base+30m and is not touched after Base+1h.
	touched, err := st.ListSessions(ctx, store.SessionFilter{EventID: e.ID, TouchedSince: Base.Add(time.Hour), Newest: true})
	require.NoError(t, err)
	require.Len(t, touched, 2)
	assert.Equal(t, "u3", touched[0].UserID)

	limited, err := st.ListSessions(ctx, store.SessionFilter{EventID: e.ID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "u1", limited[0].UserID, "oldest first by default")
}

func testGameSessionTotals(t *testing.T, st store.Store) {
	ctx := context.Background()
	e := NewEvent(t, st, "g1", "E")

	require.NoError(t, st.InsertSession(ctx, closedSession("u1", "Chess", e.ID, Base, 10)))
	require.NoError(t, st.InsertSession(ctx, closedSession("u1", "Chess", e.ID, Base.Add(time.Hour), 20)))
	require.NoError(t, st.InsertSession(ctx, &model.Session{UserID: "u2", GameName: "Chess", StartTime: Base.Add(2 * time.Hour), EventID: e.ID}))
	require.NoError(t, st.InsertSession(ctx, closedSession("u3", "Go", e.ID, Base.Add(30*time.Hour), 99)))

	totals, err := st.GameSessionTotals(ctx, e.ID, e.Window())
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, store.GameSessionTotal{GameName: "Chess", SessionCount: 3, ClosedMinutes: 30, UniquePlayers: 2}, totals[0])
}

func testSessionSummary(t *testing.T, st store.Store) {
	ctx := context.Background()
	e := NewEvent(t, st, "g1", "E")

	empty, err := st.SessionSummary(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, store.SessionSummary{}, empty)

	require.NoError(t, st.InsertSession(ctx, closedSession("u1", "Chess", e.ID, Base, 10)))
	require.NoError(t, st.InsertSession(ctx, closedSession("u2", "Go", e.ID, Base, 15)))
	require.NoError(t, st.InsertSession(ctx, &model.Session{UserID: "u2", GameName: "Go", StartTime: Base.Add(time.Hour), EventID: e.ID}))

	sum, err := st.SessionSummary(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, store.SessionSummary{TotalSessions: 3, ClosedMinutes: 25, DistinctGames: 2}, sum)
}

func testMemberSnapshots(t *testing.T, st store.Store) {
	ctx := context.Background()
	e := NewEvent(t, st, "g1", "E")

	latest, err := st.LatestMemberSnapshot(ctx, e.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	for i, online := range []int{10, 30, 20} {
		m := &model.MemberSnapshot{Timestamp: Base.Add(time.Duration(i) * time.Minute), TotalMembers: 100, OnlineMembers: online, EventID: e.ID}
		require.NoError(t, st.InsertMemberSnapshot(ctx, m))
		require.NotZero(t, m.ID)
	}

	latest, err = st.LatestMemberSnapshot(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 20, latest.OnlineMembers)

	history, err := st.MemberSnapshots(ctx, e.ID, model.Range{Start: Base, End: Base.Add(2 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 10, history[0].OnlineMembers)
	assert.Equal(t, 30, history[1].OnlineMembers)

	sum, err := st.MemberSnapshotSummary(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Samples)
	assert.Equal(t, 30, sum.PeakOnline)
	assert.InDelta(t, 20.0, sum.AvgOnline, 0.001)
}

func testGameSnapshots(t *testing.T, st store.Store) {
	ctx := context.Background()
	e := NewEvent(t, st, "g1", "E")

	samples := []model.GameSnapshot{
		{Timestamp: Base, GameName: "Chess", PlayerCount: 2},
		{Timestamp: Base.Add(5 * time.Minute), GameName: "Chess", PlayerCount: 4},
		{Timestamp: Base.Add(5 * time.Minute), GameName: "Go", PlayerCount: 1},
	}
	for i := range samples {
		samples[i].EventID = e.ID
		require.NoError(t, st.InsertGameSnapshot(ctx, &samples[i]))
	}

	recent, err := st.GameSnapshotsSince(ctx, e.ID, Base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, recent, 2)
	for _, g := range recent {
		assert.True(t, g.Timestamp.Equal(Base.Add(5*time.Minute)))
	}

	totals, err := st.GameSnapshotTotals(ctx, e.ID, e.Window())
	require.NoError(t, err)
	byGame := map[string]store.GameSnapshotTotal{}
	for _, tot := range totals {
		byGame[tot.GameName] = tot
	}
	assert.Equal(t, store.GameSnapshotTotal{GameName: "Chess", Samples: 2, MaxPlayers: 4}, byGame["Chess"])
	assert.Equal(t, store.GameSnapshotTotal{GameName: "Go", Samples: 1, MaxPlayers: 1}, byGame["Go"])
}

func testInTxRollback(t *testing.T, st store.Store) {
	ctx := context.Background()
	e := NewEvent(t, st, "g1", "E")
	boom := errors.New("boom")

	err := st.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.InsertSession(ctx, &model.Session{UserID: "u1", GameName: "Chess", StartTime: Base, EventID: e.ID}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	sessions, err := st.ListSessions(ctx, store.SessionFilter{EventID: e.ID})
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func testInTxNested(t *testing.T, st store.Store) {
	ctx := context.Background()
	e1 := NewEvent(t, st, "g1", "E1")
	e2 := NewEvent(t, st, "g1", "E2")

	// SetActiveEvent opens its own transaction; inside InTx it must join ours.
	err := st.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.SetActiveEvent(ctx, "g1", e1.ID, Base); err != nil {
			return err
		}
		return tx.SetActiveEvent(ctx, "g1", e2.ID, Base)
	})
	require.NoError(t, err)

	active, err := st.ActiveEvent(ctx, "g1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, e2.ID, active.ID)
}

func testTimestampsRoundTrip(t *testing.T, st store.Store) {
	ctx := context.Background()
	e := NewEvent(t, st, "g1", "E")

	// Non-UTC input with sub-second precision.
	loc := time.FixedZone("UTC+9", 9*60*60)
	ts := time.Date(2025, 3, 1, 21, 0, 0, 123456000, loc)
	s := &model.Session{UserID: "u1", GameName: "Chess", StartTime: ts, EventID: e.ID}
	require.NoError(t, st.InsertSession(ctx, s))

	open, err := st.FindOpenSession(ctx, "u1", "Chess")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.True(t, open.StartTime.Equal(ts), "got %s want %s", open.StartTime, ts)
}
