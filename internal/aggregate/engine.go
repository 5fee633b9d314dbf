// Package aggregate composes read-side views over sessions and snapshots.
// It owns no data; every view is computed from the store on request and
// scoped to an explicit event id.
package aggregate

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/graaaaa/playpulse/internal/clock"
	"github.com/graaaaa/playpulse/internal/logging"
	"github.com/graaaaa/playpulse/internal/model"
	"github.com/graaaaa/playpulse/internal/store"
)

// Source names reported by two-tier views.
const (
	SourceSessions  = "sessions"
	SourceSnapshots = "snapshots"
)

// Limits applied to list views.
const (
	DefaultTopGamesLimit = 10
	MaxTopGamesLimit     = 100
	DefaultActivityLimit = 20
	MaxActivityLimit     = 200
)

// OpenSessionLister lists the open, not-yet-stale sessions of an event.
type OpenSessionLister interface {
	ListOpen(ctx context.Context, eventID int64, maxAge time.Duration) ([]model.Session, error)
}

// Config holds the engine's tunables.
type Config struct {
	// StaleAfter excludes open sessions older than this from live views.
	StaleAfter time.Duration
	// FreshnessWindow bounds the game snapshots used as a current-state fallback.
	FreshnessWindow time.Duration
	// SamplingInterval weights each game snapshot in playtime estimates.
	SamplingInterval time.Duration
	// QueryTimeout bounds each view computation.
	QueryTimeout time.Duration
	// ActivityLookback is the default recent-activity window.
	ActivityLookback time.Duration
}

// DefaultConfig returns the default tunables.
func DefaultConfig() Config {
	return Config{
		StaleAfter:       8 * time.Hour,
		FreshnessWindow:  5 * time.Minute,
		SamplingInterval: 5 * time.Minute,
		QueryTimeout:     5 * time.Second,
		ActivityLookback: 24 * time.Hour,
	}
}

// Engine computes dashboard views.
type Engine struct {
	store  store.Store
	open   OpenSessionLister
	cfg    Config
	clock  clock.Clock
	logger zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger overrides the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine. Zero config fields take their defaults.
func New(st store.Store, open OpenSessionLister, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = def.FreshnessWindow
	}
	if cfg.SamplingInterval <= 0 {
		cfg.SamplingInterval = def.SamplingInterval
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = def.QueryTimeout
	}
	if cfg.ActivityLookback <= 0 {
		cfg.ActivityLookback = def.ActivityLookback
	}

	e := &Engine{
		store:  st,
		open:   open,
		cfg:    cfg,
		clock:  clock.Real{},
		logger: logging.Logger().With().Str("component", "aggregate").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective tunables.
func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.cfg.QueryTimeout)
}

// MemberHistory returns the member snapshots in rng, oldest first.
func (e *Engine) MemberHistory(ctx context.Context, eventID int64, rng model.Range) ([]model.MemberSnapshot, error) {
	if err := checkRange(rng); err != nil {
		return nil, err
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.store.MemberSnapshots(ctx, eventID, rng)
}

func checkRange(rng model.Range) error {
	if !rng.Start.IsZero() && !rng.End.IsZero() && !rng.Valid() {
		return model.Validationf("start must be before end")
	}
	return nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// liveMinutes is the elapsed time of an open session, clipped to until.
func liveMinutes(s model.Session, now, until time.Time) float64 {
	end := now
	if !until.IsZero() && until.Before(end) {
		end = until
	}
	return s.LiveMinutes(end)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
