package app

import (
	"context"
	"time"

	"github.com/graaaaa/playpulse/internal/aggregate"
	"github.com/graaaaa/playpulse/internal/model"
)

// EventResolver looks up the event a request is scoped to.
type EventResolver interface {
	Get(ctx context.Context, id int64) (model.Event, error)
	Active(ctx context.Context, scope string) (*model.Event, error)
}

// Aggregator computes the dashboard views for one event.
type Aggregator interface {
	CurrentState(ctx context.Context, eventID int64) (aggregate.CurrentState, error)
	MemberHistory(ctx context.Context, eventID int64, rng model.Range) ([]model.MemberSnapshot, error)
	TopGames(ctx context.Context, eventID int64, rng model.Range, limit int) (aggregate.TopGames, error)
	RecentActivity(ctx context.Context, eventID int64, lookback time.Duration, limit int) ([]model.Activity, error)
	EventStats(ctx context.Context, eventID int64) (aggregate.EventStats, error)
}

// Selector picks the event a dashboard request reads. A zero EventID means
// the active event of the service's scope.
type Selector struct {
	EventID int64
}

// RangeQuery is an optional [Start, End) window. Missing bounds are taken
// from the selected event's configured window.
type RangeQuery struct {
	Start *time.Time
	End   *time.Time
}

// ActivityQuery parameters the recent-activity feed. Zero values use the
// engine defaults.
type ActivityQuery struct {
	Lookback time.Duration
	Limit    int
}

// MemberHistoryResult is the member-history response.
type MemberHistoryResult struct {
	EventID   int64                  `json:"event_id"`
	Range     model.Range            `json:"range"`
	Snapshots []model.MemberSnapshot `json:"snapshots"`
}

// RecentActivityResult is the recent-activity response.
type RecentActivityResult struct {
	EventID  int64            `json:"event_id"`
	Activity []model.Activity `json:"activity"`
}

// DashboardUsecase serves the read-only dashboard views.
type DashboardUsecase interface {
	Current(ctx context.Context, sel Selector) (aggregate.CurrentState, error)
	MemberHistory(ctx context.Context, sel Selector, q RangeQuery) (MemberHistoryResult, error)
	TopGames(ctx context.Context, sel Selector, q RangeQuery, limit int) (aggregate.TopGames, error)
	RecentActivity(ctx context.Context, sel Selector, q ActivityQuery) (RecentActivityResult, error)
}

// DashboardService implements DashboardUsecase.
type DashboardService struct {
	Events EventResolver
	Engine Aggregator
	Scope  string
}

// resolve returns the selected event. It is the only place the active event
// is looked up for a dashboard request.
func (s *DashboardService) resolve(ctx context.Context, sel Selector) (model.Event, error) {
	if sel.EventID != 0 {
		return s.Events.Get(ctx, sel.EventID)
	}
	active, err := s.Events.Active(ctx, s.scope())
	if err != nil {
		return model.Event{}, err
	}
	if active == nil {
		return model.Event{}, model.NotFoundf("no active event in scope %q", s.scope())
	}
	return *active, nil
}

func (s *DashboardService) scope() string {
	if s.Scope == "" {
		return model.DefaultScope
	}
	return s.Scope
}

// Current returns the live view of the selected event.
func (s *DashboardService) Current(ctx context.Context, sel Selector) (aggregate.CurrentState, error) {
	event, err := s.resolve(ctx, sel)
	if err != nil {
		return aggregate.CurrentState{}, err
	}
	return s.Engine.CurrentState(ctx, event.ID)
}

// MemberHistory returns the member snapshots in the requested window.
func (s *DashboardService) MemberHistory(ctx context.Context, sel Selector, q RangeQuery) (MemberHistoryResult, error) {
	event, err := s.resolve(ctx, sel)
	if err != nil {
		return MemberHistoryResult{}, err
	}
	rng, err := q.resolve(event)
	if err != nil {
		return MemberHistoryResult{}, err
	}

	snapshots, err := s.Engine.MemberHistory(ctx, event.ID, rng)
	if err != nil {
		return MemberHistoryResult{}, err
	}
	if snapshots == nil {
		snapshots = []model.MemberSnapshot{}
	}
	return MemberHistoryResult{EventID: event.ID, Range: rng, Snapshots: snapshots}, nil
}

// TopGames returns the leaderboard for the requested window.
func (s *DashboardService) TopGames(ctx context.Context, sel Selector, q RangeQuery, limit int) (aggregate.TopGames, error) {
	event, err := s.resolve(ctx, sel)
	if err != nil {
		return aggregate.TopGames{}, err
	}
	rng, err := q.resolve(event)
	if err != nil {
		return aggregate.TopGames{}, err
	}

	top, err := s.Engine.TopGames(ctx, event.ID, rng, limit)
	if err != nil {
		return aggregate.TopGames{}, err
	}
	if top.Games == nil {
		top.Games = []aggregate.GameStat{}
	}
	return top, nil
}

// RecentActivity returns the started/stopped feed of the selected event.
func (s *DashboardService) RecentActivity(ctx context.Context, sel Selector, q ActivityQuery) (RecentActivityResult, error) {
	event, err := s.resolve(ctx, sel)
	if err != nil {
		return RecentActivityResult{}, err
	}

	activity, err := s.Engine.RecentActivity(ctx, event.ID, q.Lookback, q.Limit)
	if err != nil {
		return RecentActivityResult{}, err
	}
	if activity == nil {
		activity = []model.Activity{}
	}
	return RecentActivityResult{EventID: event.ID, Activity: activity}, nil
}

// resolve fills missing bounds from the event window and rejects empty or
// inverted ranges.
func (q RangeQuery) resolve(event model.Event) (model.Range, error) {
	rng := event.Window()
	if q.Start != nil {
		rng.Start = *q.Start
	}
	if q.End != nil {
		rng.End = *q.End
	}
	if !rng.Valid() {
		return model.Range{}, model.Validationf("start must be before end")
	}
	return rng, nil
}
