package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const reaperJob = "stale_reaper"

// StaleReaper closes sessions whose stop signal never arrived.
type StaleReaper interface {
	ReapStale(ctx context.Context, maxAge time.Duration) (int, error)
}

// Reaper runs a StaleReaper on an interval.
type Reaper struct {
	reaper   StaleReaper
	interval time.Duration
	maxAge   time.Duration
	logger   zerolog.Logger
}

// NewReaper creates a Reaper. A non-positive maxAge uses the reaper's own
// threshold.
func NewReaper(r StaleReaper, interval, maxAge time.Duration, opts ...Option) *Reaper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Reaper{
		reaper:   r,
		interval: interval,
		maxAge:   maxAge,
		logger:   jobLogger(reaperJob, opts),
	}
}

// Serve implements suture.Service.
func (r *Reaper) Serve(ctx context.Context) error {
	return tick(ctx, reaperJob, r.interval, r.logger, func(ctx context.Context) error {
		_, err := r.reaper.ReapStale(ctx, r.maxAge)
		return err
	})
}

func (r *Reaper) String() string {
	return reaperJob
}
