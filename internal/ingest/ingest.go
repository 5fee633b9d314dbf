package ingest

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/graaaaa/playpulse/internal/logging"
	"github.com/graaaaa/playpulse/internal/metrics"
	"github.com/graaaaa/playpulse/internal/model"
)

// Defaults for the worker pool.
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 256
	defaultOpTimeout = 10 * time.Second
)

// SessionRecorder is the tracker surface the ingester drives.
type SessionRecorder interface {
	RecordStart(ctx context.Context, user, game string, eventID int64) (model.Session, error)
	RecordStop(ctx context.Context, user, game string, eventID int64) (*model.Session, error)
}

// EventResolver finds the event a change belongs to.
type EventResolver interface {
	Active(ctx context.Context, scope string) (*model.Event, error)
	EnsureDefault(ctx context.Context, scope string) (model.Event, error)
}

// Ingester coordinates change delivery from a source to the tracker.
//
// Changes for the same (user, game) pair always land on the same worker, so
// they are applied in the order the source produced them.
type Ingester struct {
	source    PresenceSource
	sessions  SessionRecorder
	events    EventResolver
	scope     string
	logger    zerolog.Logger
	workers   int
	queueSize int
	opTimeout time.Duration

	wg sync.WaitGroup
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithLogger sets the logger for the Ingester.
func WithLogger(l zerolog.Logger) Option {
	return func(i *Ingester) { i.logger = l }
}

// WithWorkers sets the number of worker goroutines.
func WithWorkers(n int) Option {
	return func(i *Ingester) {
		if n > 0 {
			i.workers = n
		}
	}
}

// WithQueueSize sets the per-worker buffer.
func WithQueueSize(n int) Option {
	return func(i *Ingester) {
		if n > 0 {
			i.queueSize = n
		}
	}
}

// WithOpTimeout bounds each tracker call.
func WithOpTimeout(d time.Duration) Option {
	return func(i *Ingester) {
		if d > 0 {
			i.opTimeout = d
		}
	}
}

// New creates a new Ingester for scope.
func New(source PresenceSource, sessions SessionRecorder, events EventResolver, scope string, opts ...Option) *Ingester {
	i := &Ingester{
		source:    source,
		sessions:  sessions,
		events:    events,
		scope:     scope,
		logger:    logging.Logger().With().Str("component", "ingest").Logger(),
		workers:   DefaultWorkers,
		queueSize: DefaultQueueSize,
		opTimeout: defaultOpTimeout,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run starts the workers and the dispatch loop. It blocks until ctx is
// cancelled or the source closes. Queued changes are still applied after
// Run returns; use Drain to wait for them.
// Returns ctx.Err() on context cancellation, nil on clean source shutdown.
func (i *Ingester) Run(ctx context.Context) error {
	changes, errs, err := i.source.Start(ctx)
	if err != nil {
		return err
	}
	if changes == nil || errs == nil {
		return errors.New("source returned nil channel")
	}

	queues := i.startWorkers(context.WithoutCancel(ctx))
	defer func() {
		for _, q := range queues {
			close(q)
		}
	}()

	i.logger.Info().Int("workers", i.workers).Msg("ingestion started")
	defer i.logger.Info().Msg("ingestion stopped")

	changesCh := changes
	errsCh := errs
	for changesCh != nil || errsCh != nil {
		select {
		case c, ok := <-changesCh:
			if !ok {
				changesCh = nil
				continue
			}
			if !i.dispatch(ctx, queues, c) {
				return ctx.Err()
			}
		case err, ok := <-errsCh:
			if !ok {
				errsCh = nil
				continue
			}
			i.handleError(err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ctx.Err()
}

// Drain waits until every queued change has been applied or ctx expires.
func (i *Ingester) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startWorkers starts one goroutine per queue. Each exits once its queue is
// closed and drained.
func (i *Ingester) startWorkers(ctx context.Context) []chan PresenceChange {
	queues := make([]chan PresenceChange, i.workers)
	for n := range queues {
		q := make(chan PresenceChange, i.queueSize)
		queues[n] = q
		i.wg.Add(1)
		go func() {
			defer i.wg.Done()
			for c := range q {
				i.apply(ctx, c)
			}
		}()
	}
	return queues
}

// shard maps a pair to a worker index.
func shard(user, game string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(user))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(game))
	return int(h.Sum32() % uint32(n))
}

// dispatch enqueues c, blocking while the worker is busy. It reports false
// if ctx ended first.
func (i *Ingester) dispatch(ctx context.Context, queues []chan PresenceChange, c PresenceChange) bool {
	if c.UserID == "" || c.Game == "" {
		metrics.IngestChanges.WithLabelValues(string(c.Action), "dropped").Inc()
		return true
	}
	q := queues[shard(c.UserID, c.Game, len(queues))]
	select {
	case q <- c:
		return true
	default:
	}
	select {
	case q <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

func (i *Ingester) apply(ctx context.Context, c PresenceChange) {
	ctx, cancel := context.WithTimeout(ctx, i.opTimeout)
	defer cancel()

	err := i.applyChange(ctx, c)
	result := "ok"
	if err != nil {
		result = "error"
		i.logger.Error().Err(err).
			Str("user", c.UserID).
			Str("game", c.Game).
			Str("action", string(c.Action)).
			Msg("failed to apply presence change")
	}
	metrics.IngestChanges.WithLabelValues(string(c.Action), result).Inc()
}

func (i *Ingester) applyChange(ctx context.Context, c PresenceChange) error {
	eventID, err := i.resolveEvent(ctx)
	if err != nil {
		return err
	}

	switch c.Action {
	case model.ActionStarted:
		_, err = i.sessions.RecordStart(ctx, c.UserID, c.Game, eventID)
	case model.ActionStopped:
		_, err = i.sessions.RecordStop(ctx, c.UserID, c.Game, eventID)
	default:
		err = model.Validationf("unknown presence action %q", c.Action)
	}
	return err
}

// resolveEvent returns the scope's active event, bootstrapping one if an
// administrator left the scope without any.
func (i *Ingester) resolveEvent(ctx context.Context) (int64, error) {
	active, err := i.events.Active(ctx, i.scope)
	if err != nil {
		return 0, err
	}
	if active != nil {
		return active.ID, nil
	}
	e, err := i.events.EnsureDefault(ctx, i.scope)
	if err != nil {
		return 0, err
	}
	return e.ID, nil
}

func (i *Ingester) handleError(err error) {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		i.logger.Warn().Err(gwErr.Err).Str("op", gwErr.Op).Msg("gateway error")
		return
	}
	i.logger.Warn().Err(err).Msg("source error")
}
