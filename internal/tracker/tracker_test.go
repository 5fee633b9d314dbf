package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graaaaa/playpulse/internal/clock"
	"github.com/graaaaa/playpulse/internal/keylock"
	"github.com/graaaaa/playpulse/internal/model"
	"github.com/graaaaa/playpulse/internal/store"
	"github.com/graaaaa/playpulse/internal/testutil"
)

type fixture struct {
	tracker *Tracker
	store   store.Store
	clock   *clock.Fake
	event   model.Event
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := testutil.OpenStore(t)
	clk := clock.NewFake(testutil.T0)
	logger, _ := testutil.NewLogger()
	return fixture{
		tracker: New(st, keylock.NewLocal(), WithClock(clk), WithLogger(logger)),
		store:   st,
		clock:   clk,
		event:   testutil.CreateEvent(t, st, "g1", testutil.T0.Add(-time.Hour)),
	}
}

func (f fixture) sessions(t *testing.T, filter store.SessionFilter) []model.Session {
	t.Helper()
	filter.EventID = f.event.ID
	sessions, err := f.store.ListSessions(context.Background(), filter)
	require.NoError(t, err)
	return sessions
}

func TestRecordStart_OpensSession(t *testing.T) {
	f := newFixture(t)

	s, err := f.tracker.RecordStart(context.Background(), "alice", "Chess", f.event.ID)
	require.NoError(t, err)

	assert.NotZero(t, s.ID)
	assert.True(t, s.Open())
	assert.True(t, s.StartTime.Equal(testutil.T0))
}

func TestRecordStart_TwiceClosesFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.tracker.RecordStart(ctx, "alice", "Chess", f.event.ID)
	require.NoError(t, err)
	f.clock.Advance(3 * time.Minute)
	second, err := f.tracker.RecordStart(ctx, "alice", "Chess", f.event.ID)
	require.NoError(t, err)

	all := f.sessions(t, store.SessionFilter{})
	require.Len(t, all, 2)

	assert.Equal(t, first.ID, all[0].ID)
	require.NotNil(t, all[0].EndTime)
	require.NotNil(t, all[0].DurationMinutes)
	assert.Equal(t, 3, *all[0].DurationMinutes)
	assert.GreaterOrEqual(t, *all[0].DurationMinutes, 0)

	assert.Equal(t, second.ID, all[1].ID)
	assert.True(t, all[1].Open())
}

func TestRecordStart_ConcurrentKeepsOneOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.tracker.RecordStart(ctx, "alice", "Chess", f.event.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, f.sessions(t, store.SessionFilter{}), 10)
	assert.Len(t, f.sessions(t, store.SessionFilter{OpenOnly: true}), 1)
}

func TestRecordStart_KeysAreIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tracker.RecordStart(ctx, "alice", "Chess", f.event.ID)
	require.NoError(t, err)
	_, err = f.tracker.RecordStart(ctx, "alice", "Go", f.event.ID)
	require.NoError(t, err)
	_, err = f.tracker.RecordStart(ctx, "bob", "Chess", f.event.ID)
	require.NoError(t, err)

	assert.Len(t, f.sessions(t, store.SessionFilter{OpenOnly: true}), 3)
}

func TestRecordStop_ClosesSessionFromPreviousEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.tracker.RecordStart(ctx, "alice", "Chess", f.event.ID)
	require.NoError(t, err)

	next := testutil.CreateEvent(t, f.store, "g1", testutil.T0)
	f.clock.Advance(10 * time.Minute)

	closed, err := f.tracker.RecordStop(ctx, "alice", "Chess", next.ID)
	require.NoError(t, err)
	require.NotNil(t, closed)
	assert.Equal(t, first.ID, closed.ID)
	assert.Equal(t, f.event.ID, closed.EventID)
	require.NotNil(t, closed.DurationMinutes)
	assert.Equal(t, 10, *closed.DurationMinutes)

	f.clock.Advance(time.Minute)
	_, err = f.tracker.RecordStart(ctx, "alice", "Chess", next.ID)
	require.NoError(t, err)

	open, err := f.store.ListSessions(ctx, store.SessionFilter{UserID: "alice", GameName: "Chess", OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, next.ID, open[0].EventID)
}

func TestRecordStart_ClosesDanglingSessionFromPreviousEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tracker.RecordStart(ctx, "alice", "Chess", f.event.ID)
	require.NoError(t, err)

	next := testutil.CreateEvent(t, f.store, "g1", testutil.T0)
	f.clock.Advance(5 * time.Minute)
	s, err := f.tracker.RecordStart(ctx, "alice", "Chess", next.ID)
	require.NoError(t, err)
	assert.Equal(t, next.ID, s.EventID)

	old := f.sessions(t, store.SessionFilter{})
	require.Len(t, old, 1)
	assert.False(t, old[0].Open())
	require.NotNil(t, old[0].DurationMinutes)
	assert.Equal(t, 5, *old[0].DurationMinutes)
}

func TestRecordStop_ComputesRoundedDuration(t *testing.T) {
	tests := []struct {
		elapsed time.Duration
		want    int
	}{
		{10 * time.Minute, 10},
		{10*time.Minute + 29*time.Second, 10},
		{10*time.Minute + 30*time.Second, 11},
		{20 * time.Second, 0},
	}
	for _, tt := range tests {
		t.Run(tt.elapsed.String(), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			_, err := f.tracker.RecordStart(ctx, "alice", "Chess", f.event.ID)
			require.NoError(t, err)
			f.clock.Advance(tt.elapsed)

			closed, err := f.tracker.RecordStop(ctx, "alice", "Chess", f.event.ID)
			require.NoError(t, err)
			require.NotNil(t, closed)
			require.NotNil(t, closed.DurationMinutes)
			assert.Equal(t, tt.want, *closed.DurationMinutes)

			stored := f.sessions(t, store.SessionFilter{})
			require.Len(t, stored, 1)
			assert.Equal(t, tt.want, *stored[0].DurationMinutes)
			assert.True(t, stored[0].EndTime.Equal(testutil.T0.Add(tt.elapsed)))
		})
	}
}

func TestRecordStop_NoOpenSessionIsNoOp(t *testing.T) {
	f := newFixture(t)

	closed, err := f.tracker.RecordStop(context.Background(), "alice", "Chess", f.event.ID)
	require.NoError(t, err)
	assert.Nil(t, closed)
	assert.Empty(t, f.sessions(t, store.SessionFilter{}))
}

func TestRecordStop_Twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tracker.RecordStart(ctx, "alice", "Chess", f.event.ID)
	require.NoError(t, err)
	first, err := f.tracker.RecordStop(ctx, "alice", "Chess", f.event.ID)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := f.tracker.RecordStop(ctx, "alice", "Chess", f.event.ID)
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestRecord_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tracker.RecordStart(ctx, "", "Chess", f.event.ID)
	assert.True(t, errors.Is(err, model.ErrValidation))
	_, err = f.tracker.RecordStart(ctx, "alice", "", f.event.ID)
	assert.True(t, errors.Is(err, model.ErrValidation))
	_, err = f.tracker.RecordStop(ctx, "alice", "Chess", 0)
	assert.True(t, errors.Is(err, model.ErrValidation))
}

func TestReapStale_Boundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tracker.RecordStart(ctx, "old", "Chess", f.event.ID)
	require.NoError(t, err)
	f.clock.Advance(2 * time.Minute)
	young, err := f.tracker.RecordStart(ctx, "young", "Chess", f.event.ID)
	require.NoError(t, err)

	// old has been open 8h1m, young 7h59m.
	f.clock.Advance(7*time.Hour + 59*time.Minute)

	n, err := f.tracker.ReapStale(ctx, 8*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	open := f.sessions(t, store.SessionFilter{OpenOnly: true})
	require.Len(t, open, 1)
	assert.Equal(t, young.ID, open[0].ID)

	reaped := f.sessions(t, store.SessionFilter{UserID: "old"})
	require.Len(t, reaped, 1)
	require.NotNil(t, reaped[0].EndTime)
	assert.True(t, reaped[0].EndTime.Equal(f.clock.Now()))
	assert.Equal(t, 8*60+1, *reaped[0].DurationMinutes)

	// Second sweep finds nothing new.
	n, err = f.tracker.ReapStale(ctx, 8*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReapStale_DefaultThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := New(f.store, nil, WithClock(f.clock), WithStaleAfter(time.Hour))
	assert.Equal(t, time.Hour, tr.StaleAfter())

	_, err := tr.RecordStart(ctx, "alice", "Chess", f.event.ID)
	require.NoError(t, err)
	f.clock.Advance(time.Hour)

	n, err := tr.ReapStale(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "exactly maxAge old is reaped")
}

func TestListOpen_FiltersStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tracker.RecordStart(ctx, "stale", "Chess", f.event.ID)
	require.NoError(t, err)
	f.clock.Advance(9 * time.Hour)
	fresh, err := f.tracker.RecordStart(ctx, "fresh", "Chess", f.event.ID)
	require.NoError(t, err)

	open, err := f.tracker.ListOpen(ctx, f.event.ID, 8*time.Hour)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, fresh.ID, open[0].ID)
}
