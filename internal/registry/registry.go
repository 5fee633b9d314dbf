// Package registry owns the lifecycle of events: the time-boxed tracking
// periods that scope every session and snapshot.
package registry

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/graaaaa/playpulse/internal/clock"
	"github.com/graaaaa/playpulse/internal/logging"
	"github.com/graaaaa/playpulse/internal/model"
	"github.com/graaaaa/playpulse/internal/store"
	"github.com/graaaaa/playpulse/internal/validation"
)

// Defaults describes the event created by EnsureDefault when a scope has none.
type Defaults struct {
	Name     string
	Duration time.Duration
	Timezone string
}

// Registry creates, activates and deletes events.
type Registry struct {
	store    store.Store
	clock    clock.Clock
	logger   zerolog.Logger
	defaults Defaults

	// ensureMu keeps concurrent EnsureDefault calls in one process from
	// racing between the existence check and the insert.
	ensureMu sync.Mutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the clock used for timestamps.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithLogger overrides the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates a Registry backed by st.
func New(st store.Store, defaults Defaults, opts ...Option) *Registry {
	if defaults.Name == "" {
		defaults.Name = "Default Event"
	}
	if defaults.Duration <= 0 {
		defaults.Duration = 365 * 24 * time.Hour
	}
	if defaults.Timezone == "" {
		defaults.Timezone = "UTC"
	}
	r := &Registry{
		store:    st,
		clock:    clock.Real{},
		logger:   logging.Logger().With().Str("component", "registry").Logger(),
		defaults: defaults,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create validates spec and persists a new event. When spec.IsActive is set
// the event is activated in the same transaction.
func (r *Registry) Create(ctx context.Context, spec model.EventSpec) (model.Event, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	if err := validation.ValidateStruct(&spec); err != nil {
		return model.Event{}, err
	}
	if !spec.StartTime.Before(spec.EndTime) {
		return model.Event{}, model.Validationf("start_time must be before end_time")
	}

	now := r.clock.Now()
	e := model.Event{
		Name:         spec.Name,
		StartTime:    spec.StartTime.UTC(),
		EndTime:      spec.EndTime.UTC(),
		Timezone:     spec.Timezone,
		Description:  spec.Description,
		IsHidden:     spec.IsHidden,
		GuildScopeID: spec.GuildScopeID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if e.Timezone == "" {
		e.Timezone = "UTC"
	}
	if e.GuildScopeID == "" {
		e.GuildScopeID = model.DefaultScope
	}

	err := r.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.CreateEvent(ctx, &e); err != nil {
			return err
		}
		if spec.IsActive {
			if err := tx.SetActiveEvent(ctx, e.GuildScopeID, e.ID, now); err != nil {
				return err
			}
			e.IsActive = true
		}
		return nil
	})
	if err != nil {
		return model.Event{}, err
	}

	r.logger.Info().
		Int64("event_id", e.ID).
		Str("name", e.Name).
		Str("scope", e.GuildScopeID).
		Bool("active", e.IsActive).
		Msg("event created")
	return e, nil
}

// Get returns the event with id.
func (r *Registry) Get(ctx context.Context, id int64) (model.Event, error) {
	return r.store.GetEvent(ctx, id)
}

// List returns the events of scope, newest start first. An empty scope lists
// every scope.
func (r *Registry) List(ctx context.Context, scope string, includeHidden bool) ([]model.Event, error) {
	return r.store.ListEvents(ctx, store.EventFilter{Scope: scope, IncludeHidden: includeHidden})
}

// Update applies patch to the event with id. The merged start and end are
// re-validated.
func (r *Registry) Update(ctx context.Context, id int64, patch model.EventPatch) (model.Event, error) {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return model.Event{}, model.Validationf("name must not be empty")
		}
		patch.Name = &name
	}
	if err := validation.ValidateStruct(&patch); err != nil {
		return model.Event{}, err
	}

	var updated model.Event
	err := r.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		current, err := tx.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		updated = patch.Apply(current)
		updated.StartTime = updated.StartTime.UTC()
		updated.EndTime = updated.EndTime.UTC()
		if !updated.Window().Valid() {
			return model.Validationf("start_time must be before end_time")
		}
		updated.UpdatedAt = r.clock.Now()
		return tx.UpdateEvent(ctx, updated)
	})
	if err != nil {
		return model.Event{}, err
	}
	return updated, nil
}

// Active returns the active event for scope, or nil when none is active.
func (r *Registry) Active(ctx context.Context, scope string) (*model.Event, error) {
	return r.store.ActiveEvent(ctx, scope)
}

// Activate makes id the single active event of scope.
func (r *Registry) Activate(ctx context.Context, scope string, id int64) (model.Event, error) {
	var activated model.Event
	err := r.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		e, err := tx.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		if e.GuildScopeID != scope {
			return model.Conflictf("event %d belongs to scope %q, not %q", id, e.GuildScopeID, scope)
		}
		now := r.clock.Now()
		if err := tx.SetActiveEvent(ctx, scope, id, now); err != nil {
			return err
		}
		e.IsActive = true
		e.UpdatedAt = now
		activated = e
		return nil
	})
	if err != nil {
		return model.Event{}, err
	}

	r.logger.Info().Int64("event_id", id).Str("scope", scope).Msg("event activated")
	return activated, nil
}

// EnsureDefault guarantees scope has an active event. With no events it
// creates one from the configured defaults; with events but none active it
// activates the most recently created. Repeated calls are no-ops.
func (r *Registry) EnsureDefault(ctx context.Context, scope string) (model.Event, error) {
	r.ensureMu.Lock()
	defer r.ensureMu.Unlock()

	var result model.Event
	err := r.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		// ensureMu covers this process only.
		if err := tx.LockScope(ctx, scope); err != nil {
			return err
		}
		active, err := tx.ActiveEvent(ctx, scope)
		if err != nil {
			return err
		}
		if active != nil {
			result = *active
			return nil
		}

		now := r.clock.Now()
		latest, err := tx.LatestEvent(ctx, scope)
		if err != nil {
			return err
		}
		if latest != nil {
			if err := tx.SetActiveEvent(ctx, scope, latest.ID, now); err != nil {
				return err
			}
			latest.IsActive = true
			latest.UpdatedAt = now
			result = *latest
			r.logger.Info().Int64("event_id", latest.ID).Str("scope", scope).Msg("activated latest event")
			return nil
		}

		start := now.Truncate(time.Minute)
		e := model.Event{
			Name:         r.defaults.Name,
			StartTime:    start,
			EndTime:      start.Add(r.defaults.Duration),
			Timezone:     r.defaults.Timezone,
			GuildScopeID: scope,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.CreateEvent(ctx, &e); err != nil {
			return err
		}
		if err := tx.SetActiveEvent(ctx, scope, e.ID, now); err != nil {
			return err
		}
		e.IsActive = true
		result = e
		r.logger.Info().Int64("event_id", e.ID).Str("scope", scope).Msg("created default event")
		return nil
	})
	if err != nil {
		return model.Event{}, err
	}
	return result, nil
}

// Delete removes an inactive event and everything it owns.
func (r *Registry) Delete(ctx context.Context, id int64) error {
	err := r.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		e, err := tx.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		if e.IsActive {
			return model.Conflictf("event %d is active; activate another event first", id)
		}
		return tx.DeleteEvent(ctx, id)
	})
	if err != nil {
		return err
	}

	r.logger.Info().Int64("event_id", id).Msg("event deleted")
	return nil
}
