package recorder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graaaaa/playpulse/internal/clock"
	"github.com/graaaaa/playpulse/internal/metrics"
	"github.com/graaaaa/playpulse/internal/model"
	"github.com/graaaaa/playpulse/internal/store"
	fixtures "github.com/graaaaa/playpulse/internal/testutil"
)

func newTestRecorder(t *testing.T) (*Recorder, store.Store, model.Event, *fixtures.LogBuffer) {
	t.Helper()
	st := fixtures.OpenStore(t)
	logger, buf := fixtures.NewLogger()
	r := New(st, WithClock(clock.NewFake(fixtures.T0)), WithLogger(logger))
	return r, st, fixtures.CreateEvent(t, st, "g1", fixtures.T0.Add(-time.Hour)), buf
}

func TestRecordMember_OnlineExceedsTotalPersistsWithWarning(t *testing.T) {
	r, st, e, logs := newTestRecorder(t)
	ctx := context.Background()
	before := testutil.ToFloat64(metrics.StaleDataWarnings)

	snap, err := r.RecordMember(ctx, 100, 150, e.ID)
	require.NoError(t, err)
	assert.NotZero(t, snap.ID)

	latest, err := st.LatestMemberSnapshot(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 150, latest.OnlineMembers)
	assert.Equal(t, 100, latest.TotalMembers)

	assert.Contains(t, logs.String(), `"warning":"stale_data"`)
	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.StaleDataWarnings))
}

func TestRecordMember_ConsistentCountsDoNotWarn(t *testing.T) {
	r, _, e, logs := newTestRecorder(t)

	_, err := r.RecordMember(context.Background(), 100, 40, e.ID)
	require.NoError(t, err)
	assert.NotContains(t, logs.String(), "stale_data")
}

func TestRecordMember_NegativeCounts(t *testing.T) {
	r, _, e, _ := newTestRecorder(t)

	_, err := r.RecordMember(context.Background(), -1, 0, e.ID)
	assert.True(t, errors.Is(err, model.ErrValidation))
}

func TestRecordGame(t *testing.T) {
	r, st, e, _ := newTestRecorder(t)
	ctx := context.Background()

	snap, err := r.RecordGame(ctx, " Chess ", 3, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Chess", snap.GameName)
	assert.True(t, snap.Timestamp.Equal(fixtures.T0))

	recent, err := st.GameSnapshotsSince(ctx, e.ID, fixtures.T0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 3, recent[0].PlayerCount)

	_, err = r.RecordGame(ctx, "", 3, e.ID)
	assert.True(t, errors.Is(err, model.ErrValidation))
	_, err = r.RecordGame(ctx, "Chess", -2, e.ID)
	assert.True(t, errors.Is(err, model.ErrValidation))
}

func TestRecordPresence_SharedTimestamp(t *testing.T) {
	r, st, e, _ := newTestRecorder(t)
	ctx := context.Background()

	err := r.RecordPresence(ctx, model.PresenceSnapshot{
		TotalMembers:  50,
		OnlineMembers: 20,
		PlayingGames: []model.GameCount{
			{Name: "Chess", Count: 2},
			{Name: "Go", Count: 1},
			{Name: "Idle", Count: 0},
		},
	}, e.ID)
	require.NoError(t, err)

	latest, err := st.LatestMemberSnapshot(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)

	games, err := st.GameSnapshotsSince(ctx, e.ID, fixtures.T0)
	require.NoError(t, err)
	require.Len(t, games, 2)
	for _, g := range games {
		assert.True(t, g.Timestamp.Equal(latest.Timestamp))
	}
}

func TestRecordPresence_InvalidRollsBack(t *testing.T) {
	r, st, e, _ := newTestRecorder(t)
	ctx := context.Background()

	err := r.RecordPresence(ctx, model.PresenceSnapshot{
		TotalMembers:  50,
		OnlineMembers: 20,
		PlayingGames:  []model.GameCount{{Name: "  ", Count: 2}},
	}, e.ID)
	require.Error(t, err)

	latest, err := st.LatestMemberSnapshot(ctx, e.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)
}
