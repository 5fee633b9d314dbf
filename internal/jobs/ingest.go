package jobs

import (
	"context"
	"time"

	"github.com/graaaaa/playpulse/internal/logging"
)

// Ingester is the ingest loop surface.
type Ingester interface {
	Run(ctx context.Context) error
	Drain(ctx context.Context) error
}

// IngestService runs the ingest loop and, once it stops, waits for queued
// changes to be written.
type IngestService struct {
	ingester     Ingester
	drainTimeout time.Duration
}

// NewIngestService wraps ing.
func NewIngestService(ing Ingester, drainTimeout time.Duration) *IngestService {
	if drainTimeout <= 0 {
		drainTimeout = 10 * time.Second
	}
	return &IngestService{ingester: ing, drainTimeout: drainTimeout}
}

// Serve implements suture.Service.
func (s *IngestService) Serve(ctx context.Context) error {
	runErr := s.ingester.Run(ctx)

	drainCtx, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
	defer cancel()
	if err := s.ingester.Drain(drainCtx); err != nil {
		logging.Warn().Err(err).Msg("ingest drain incomplete")
	}
	return runErr
}

func (s *IngestService) String() string {
	return "ingest"
}
