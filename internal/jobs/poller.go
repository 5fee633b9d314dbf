package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/graaaaa/playpulse/internal/ingest"
	"github.com/graaaaa/playpulse/internal/model"
)

const pollerJob = "snapshot_poller"

// PresenceRecorder stores one presence snapshot.
type PresenceRecorder interface {
	RecordPresence(ctx context.Context, p model.PresenceSnapshot, eventID int64) error
}

// ActiveEvents resolves the scope's active event.
type ActiveEvents interface {
	Active(ctx context.Context, scope string) (*model.Event, error)
}

// PollerConfig configures the SnapshotPoller.
type PollerConfig struct {
	Scope string
	// Interval is the sampling interval.
	Interval time.Duration
	// Timeout bounds one gateway call plus the write.
	Timeout time.Duration
	// BreakerFailures consecutive gateway failures open the breaker.
	BreakerFailures uint32
	// BreakerCooldown is how long the breaker stays open.
	BreakerCooldown time.Duration
}

// DefaultPollerConfig returns the defaults.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:        5 * time.Minute,
		Timeout:         30 * time.Second,
		BreakerFailures: 3,
		BreakerCooldown: time.Minute,
	}
}

// SnapshotPoller samples gateway presence counts on a fixed interval and
// records them against the active event.
type SnapshotPoller struct {
	source   ingest.SnapshotSource
	recorder PresenceRecorder
	events   ActiveEvents
	cfg      PollerConfig
	breaker  *gobreaker.CircuitBreaker[model.PresenceSnapshot]
	logger   zerolog.Logger
}

// NewSnapshotPoller creates a poller. Zero config fields take defaults.
func NewSnapshotPoller(source ingest.SnapshotSource, recorder PresenceRecorder, events ActiveEvents, cfg PollerConfig, opts ...Option) *SnapshotPoller {
	def := DefaultPollerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = def.BreakerCooldown
	}

	p := &SnapshotPoller{
		source:   source,
		recorder: recorder,
		events:   events,
		cfg:      cfg,
		logger:   jobLogger(pollerJob, opts),
	}
	p.breaker = gobreaker.NewCircuitBreaker[model.PresenceSnapshot](gobreaker.Settings{
		Name:        "gateway-snapshot",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
	return p
}

// Serve implements suture.Service.
func (p *SnapshotPoller) Serve(ctx context.Context) error {
	return tick(ctx, pollerJob, p.cfg.Interval, p.logger, p.PollOnce)
}

// PollOnce takes one sample.
func (p *SnapshotPoller) PollOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	snap, err := p.breaker.Execute(func() (model.PresenceSnapshot, error) {
		return p.source.Snapshot(ctx)
	})
	if err != nil {
		return err
	}

	active, err := p.events.Active(ctx, p.cfg.Scope)
	if err != nil {
		return err
	}
	if active == nil {
		return model.NotFoundf("no active event in scope %q", p.cfg.Scope)
	}

	if err := p.recorder.RecordPresence(ctx, snap, active.ID); err != nil {
		return err
	}
	p.logger.Debug().
		Int64("event_id", active.ID).
		Int("online", snap.OnlineMembers).
		Int("games", len(snap.PlayingGames)).
		Msg("presence snapshot recorded")
	return nil
}

// BreakerState reports the gateway breaker state.
func (p *SnapshotPoller) BreakerState() string {
	return p.breaker.State().String()
}

// String implements fmt.Stringer for suture logs.
func (p *SnapshotPoller) String() string {
	return pollerJob
}
