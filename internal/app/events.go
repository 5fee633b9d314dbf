package app

import (
	"context"

	"github.com/graaaaa/playpulse/internal/aggregate"
	"github.com/graaaaa/playpulse/internal/model"
)

// EventsUsecase manages events.
type EventsUsecase interface {
	List(ctx context.Context, includeHidden bool) ([]model.Event, error)
	Get(ctx context.Context, id int64) (model.Event, error)
	Create(ctx context.Context, spec model.EventSpec) (model.Event, error)
	Update(ctx context.Context, id int64, patch model.EventPatch) (model.Event, error)
	Delete(ctx context.Context, id int64) error
	Activate(ctx context.Context, id int64) (model.Event, error)
	Stats(ctx context.Context, id int64) (aggregate.EventStats, error)
}

// EventRegistry defines the registry operations needed by EventsService.
type EventRegistry interface {
	Create(ctx context.Context, spec model.EventSpec) (model.Event, error)
	Get(ctx context.Context, id int64) (model.Event, error)
	List(ctx context.Context, scope string, includeHidden bool) ([]model.Event, error)
	Update(ctx context.Context, id int64, patch model.EventPatch) (model.Event, error)
	Activate(ctx context.Context, scope string, id int64) (model.Event, error)
	Delete(ctx context.Context, id int64) error
}

// EventStatser computes the one-shot summary of an event.
type EventStatser interface {
	EventStats(ctx context.Context, eventID int64) (aggregate.EventStats, error)
}

// EventsService implements EventsUsecase for one guild scope.
type EventsService struct {
	Registry EventRegistry
	Engine   EventStatser
	Scope    string
}

func (s *EventsService) scope() string {
	if s.Scope == "" {
		return model.DefaultScope
	}
	return s.Scope
}

// List returns the scope's events, newest first.
func (s *EventsService) List(ctx context.Context, includeHidden bool) ([]model.Event, error) {
	events, err := s.Registry.List(ctx, s.scope(), includeHidden)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []model.Event{}
	}
	return events, nil
}

// Get returns one event.
func (s *EventsService) Get(ctx context.Context, id int64) (model.Event, error) {
	return s.Registry.Get(ctx, id)
}

// Create creates an event in the service's scope unless the spec names one.
func (s *EventsService) Create(ctx context.Context, spec model.EventSpec) (model.Event, error) {
	if spec.GuildScopeID == "" {
		spec.GuildScopeID = s.scope()
	}
	return s.Registry.Create(ctx, spec)
}

// Update applies a partial patch.
func (s *EventsService) Update(ctx context.Context, id int64, patch model.EventPatch) (model.Event, error) {
	return s.Registry.Update(ctx, id, patch)
}

// Delete removes an inactive event and everything recorded under it.
func (s *EventsService) Delete(ctx context.Context, id int64) error {
	return s.Registry.Delete(ctx, id)
}

// Activate makes id the scope's active event.
func (s *EventsService) Activate(ctx context.Context, id int64) (model.Event, error) {
	return s.Registry.Activate(ctx, s.scope(), id)
}

// Stats summarizes one event.
func (s *EventsService) Stats(ctx context.Context, id int64) (aggregate.EventStats, error) {
	return s.Engine.EventStats(ctx, id)
}
