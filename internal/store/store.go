// Package store defines the storage contract every backend implements.
// The registry, tracker, recorder and aggregation engine are written against
// Store only; SQL dialect differences live in the backend packages.
package store

import (
	"context"
	"time"

	"github.com/graaaaa/playpulse/internal/model"
)

// TimeFormat is the fixed-width RFC3339 format used for TEXT timestamps.
// Using fixed width ensures lexicographic ordering matches chronological ordering.
const TimeFormat = "2006-01-02T15:04:05.000000000Z"

// Store is the storage boundary shared by the embedded and networked backends.
type Store interface {
	EventStore
	SessionStore
	SnapshotStore

	// InTx runs fn inside a transaction. The Store passed to fn is bound to
	// the transaction; calling InTx on it reuses the same transaction.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// LockScope takes a lock on scope held until the surrounding transaction
	// ends, so check-then-insert sequences on the scope do not interleave
	// with other processes. It must be called inside InTx.
	LockScope(ctx context.Context, scope string) error

	// SyncSequences advances generated-id sequences past rows inserted with
	// explicit ids. Backends without sequences do nothing.
	SyncSequences(ctx context.Context) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Backend returns the backend name ("sqlite" or "postgres").
	Backend() string

	// Close releases the underlying connection pool.
	Close() error
}

// EventStore persists events.
type EventStore interface {
	CreateEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id int64) (model.Event, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]model.Event, error)
	UpdateEvent(ctx context.Context, e model.Event) error
	DeleteEvent(ctx context.Context, id int64) error
	ActiveEvent(ctx context.Context, scope string) (*model.Event, error)
	SetActiveEvent(ctx context.Context, scope string, id int64, at time.Time) error
	LatestEvent(ctx context.Context, scope string) (*model.Event, error)
}

// SessionStore persists play sessions.
type SessionStore interface {
	InsertSession(ctx context.Context, s *model.Session) error
	// FindOpenSession returns the pair's open session in any event, or nil.
	FindOpenSession(ctx context.Context, userID, game string) (*model.Session, error)
	CloseSession(ctx context.Context, id int64, end time.Time, minutes int) (bool, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error)
	GameSessionTotals(ctx context.Context, eventID int64, rng model.Range) ([]GameSessionTotal, error)
	SessionSummary(ctx context.Context, eventID int64) (SessionSummary, error)
}

// SnapshotStore persists member and game snapshots.
type SnapshotStore interface {
	InsertMemberSnapshot(ctx context.Context, s *model.MemberSnapshot) error
	InsertGameSnapshot(ctx context.Context, s *model.GameSnapshot) error
	LatestMemberSnapshot(ctx context.Context, eventID int64) (*model.MemberSnapshot, error)
	MemberSnapshots(ctx context.Context, eventID int64, rng model.Range) ([]model.MemberSnapshot, error)
	GameSnapshotsSince(ctx context.Context, eventID int64, since time.Time) ([]model.GameSnapshot, error)
	GameSnapshotTotals(ctx context.Context, eventID int64, rng model.Range) ([]GameSnapshotTotal, error)
	MemberSnapshotSummary(ctx context.Context, eventID int64) (MemberSummary, error)
}

// EventFilter narrows ListEvents. An empty Scope lists every scope.
type EventFilter struct {
	Scope         string
	IncludeHidden bool
}

// SessionFilter narrows ListSessions. Zero values disable a condition.
type SessionFilter struct {
	// EventID restricts to one event; 0 matches every event.
	EventID int64
	// UserID and GameName restrict to one user or game.
	UserID   string
	GameName string
	// Started restricts start_time to [Start, End); zero bounds are open.
	Started model.Range
	// OpenOnly keeps sessions without an end time.
	OpenOnly bool
	// TouchedSince keeps sessions that started or ended at or after the time.
	TouchedSince time.Time
	// Limit caps the result; 0 means unlimited.
	Limit int
	// Newest orders by most recent activity first instead of start ascending.
	Newest bool
}

// GameSessionTotal aggregates the sessions of one game.
type GameSessionTotal struct {
	GameName      string
	SessionCount  int
	ClosedMinutes int
	UniquePlayers int
}

// SessionSummary aggregates every session of an event.
type SessionSummary struct {
	TotalSessions int
	ClosedMinutes int
	DistinctGames int
}

// GameSnapshotTotal aggregates the game snapshots of one game.
type GameSnapshotTotal struct {
	GameName   string
	Samples    int
	MaxPlayers int
}

// MemberSummary aggregates the member snapshots of an event.
type MemberSummary struct {
	Samples    int
	PeakOnline int
	AvgOnline  float64
}
