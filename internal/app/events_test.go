package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graaaaa/playpulse/internal/aggregate"
	"github.com/graaaaa/playpulse/internal/clock"
	"github.com/graaaaa/playpulse/internal/model"
	"github.com/graaaaa/playpulse/internal/registry"
	"github.com/graaaaa/playpulse/internal/testutil"
	"github.com/graaaaa/playpulse/internal/tracker"
)

func newEventsService(t *testing.T, scope string) *EventsService {
	t.Helper()
	st := testutil.OpenStore(t)
	clk := clock.NewFake(testutil.T0)
	logger, _ := testutil.NewLogger()

	reg := registry.New(st, registry.Defaults{Name: "Default", Duration: 24 * time.Hour, Timezone: "UTC"},
		registry.WithClock(clk), registry.WithLogger(logger))
	tr := tracker.New(st, nil, tracker.WithClock(clk), tracker.WithLogger(logger))
	engine := aggregate.New(st, tr, aggregate.DefaultConfig(), aggregate.WithClock(clk), aggregate.WithLogger(logger))
	return &EventsService{Registry: reg, Engine: engine, Scope: scope}
}

func spec(name string, start time.Time) model.EventSpec {
	return model.EventSpec{Name: name, StartTime: start, EndTime: start.Add(time.Hour)}
}

func TestEventsService_CreateUsesServiceScope(t *testing.T) {
	svc := newEventsService(t, "guild-1")
	ctx := context.Background()

	e, err := svc.Create(ctx, spec("LAN", testutil.T0))
	require.NoError(t, err)
	assert.Equal(t, "guild-1", e.GuildScopeID)

	list, err := svc.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, e.ID, list[0].ID)
}

func TestEventsService_ActivateAndDelete(t *testing.T) {
	svc := newEventsService(t, "")
	ctx := context.Background()

	e1, err := svc.Create(ctx, spec("one", testutil.T0))
	require.NoError(t, err)
	e2, err := svc.Create(ctx, spec("two", testutil.T0.Add(time.Hour)))
	require.NoError(t, err)

	_, err = svc.Activate(ctx, e1.ID)
	require.NoError(t, err)
	_, err = svc.Activate(ctx, e2.ID)
	require.NoError(t, err)

	got1, err := svc.Get(ctx, e1.ID)
	require.NoError(t, err)
	assert.False(t, got1.IsActive)

	err = svc.Delete(ctx, e2.ID)
	assert.True(t, errors.Is(err, model.ErrConflict))
	require.NoError(t, svc.Delete(ctx, e1.ID))

	_, err = svc.Get(ctx, e1.ID)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestEventsService_ActivateOtherScope(t *testing.T) {
	svc := newEventsService(t, "guild-1")
	ctx := context.Background()

	s := spec("elsewhere", testutil.T0)
	s.GuildScopeID = "guild-2"
	e, err := svc.Create(ctx, s)
	require.NoError(t, err)

	_, err = svc.Activate(ctx, e.ID)
	assert.True(t, errors.Is(err, model.ErrConflict))
}

func TestEventsService_Stats(t *testing.T) {
	svc := newEventsService(t, "")
	ctx := context.Background()

	e, err := svc.Create(ctx, spec("stats", testutil.T0))
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "stats", stats.EventName)
	assert.Nil(t, stats.TopGame)

	_, err = svc.Stats(ctx, 404)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}
