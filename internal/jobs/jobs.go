// Package jobs holds the long-running pieces of the process as
// suture.Services: the snapshot poller, the stale-session reaper, the ingest
// loop and the HTTP server.
//
// Ticker jobs never return on an iteration failure. They log it, count it
// and try again on the next tick.
package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/graaaaa/playpulse/internal/logging"
	"github.com/graaaaa/playpulse/internal/metrics"
)

type options struct {
	logger *zerolog.Logger
}

// Option configures a ticker job.
type Option func(*options)

// WithLogger overrides the job's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

func jobLogger(name string, opts []Option) zerolog.Logger {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger != nil {
		return *o.logger
	}
	return logging.Logger().With().Str("component", name).Logger()
}

// tick runs fn immediately and then every interval until ctx is done.
func tick(ctx context.Context, name string, interval time.Duration, logger zerolog.Logger, fn func(context.Context) error) error {
	run := func() {
		err := fn(ctx)
		if err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Str("job", name).Msg("job iteration failed")
		}
		if ctx.Err() == nil {
			metrics.RecordJobRun(name, err)
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			run()
		}
	}
}
