// Package model provides the domain types shared by the registry, tracker,
// recorder, aggregation engine and storage backends.
package model

import "time"

// DefaultScope is the guild scope used when none is configured.
const DefaultScope = "default"

// Event is a time-boxed tracking period. Sessions and snapshots are scoped to
// exactly one event.
type Event struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Timezone     string    `json:"timezone"`
	Description  string    `json:"description"`
	IsActive     bool      `json:"is_active"`
	IsHidden     bool      `json:"is_hidden"`
	GuildScopeID string    `json:"guild_scope_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Window returns the event's configured [start, end) range.
func (e Event) Window() Range {
	return Range{Start: e.StartTime, End: e.EndTime}
}

// EventSpec describes a new event.
type EventSpec struct {
	Name         string    `json:"name" validate:"required,max=200"`
	StartTime    time.Time `json:"start_time" validate:"required"`
	EndTime      time.Time `json:"end_time" validate:"required"`
	Timezone     string    `json:"timezone" validate:"omitempty,max=64,timezone"`
	Description  string    `json:"description" validate:"max=2000"`
	IsActive     bool      `json:"is_active"`
	IsHidden     bool      `json:"is_hidden"`
	GuildScopeID string    `json:"guild_scope_id" validate:"omitempty,max=64"`
}

// EventPatch is a partial update. Nil fields are left unchanged.
type EventPatch struct {
	Name        *string    `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Timezone    *string    `json:"timezone,omitempty" validate:"omitempty,max=64,timezone"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=2000"`
	IsHidden    *bool      `json:"is_hidden,omitempty"`
}

// Apply returns a copy of e with the patch applied.
func (p EventPatch) Apply(e Event) Event {
	if p.Name != nil {
		e.Name = *p.Name
	}
	if p.StartTime != nil {
		e.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		e.EndTime = *p.EndTime
	}
	if p.Timezone != nil {
		e.Timezone = *p.Timezone
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.IsHidden != nil {
		e.IsHidden = *p.IsHidden
	}
	return e
}

// Range is a half-open [Start, End) interval.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Valid reports whether Start is strictly before End.
func (r Range) Valid() bool {
	return r.Start.Before(r.End)
}

// StringPtr returns a pointer to the given string.
func StringPtr(s string) *string {
	return &s
}

// TimePtr returns a pointer to the given time.
func TimePtr(t time.Time) *time.Time {
	return &t
}
