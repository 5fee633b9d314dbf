// Package app provides application use cases. Each use case resolves the
// event it operates on exactly once and passes its id down explicitly.
package app

import (
	"context"
	"time"
)

// Health statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// HealthUsecase defines the health check use case.
type HealthUsecase interface {
	Handle(ctx context.Context) (HealthResult, error)
}

// HealthResult represents the health check response.
type HealthResult struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Backend  string `json:"backend,omitempty"`
	Database string `json:"database"`
}

// Pinger is the part of the store the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
	Backend() string
}

// HealthService implements HealthUsecase.
type HealthService struct {
	Version string
	Store   Pinger
	// PingTimeout bounds the store ping; zero means 2s.
	PingTimeout time.Duration
}

// Handle reports liveness and whether the store answers. A failed ping is a
// degraded result, not an error.
func (s HealthService) Handle(ctx context.Context) (HealthResult, error) {
	res := HealthResult{Status: StatusOK, Version: s.Version, Database: "unknown"}
	if s.Store == nil {
		return res, nil
	}

	timeout := s.PingTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res.Backend = s.Store.Backend()
	if err := s.Store.Ping(ctx); err != nil {
		res.Status = StatusDegraded
		res.Database = "unreachable"
		return res, nil
	}
	res.Database = "ok"
	return res, nil
}
