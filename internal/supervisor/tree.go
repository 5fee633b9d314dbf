// Package supervisor arranges the process's services in a suture tree.
//
//   - gateway: ingest loop and snapshot poller
//   - maintenance: stale-session reaper
//   - api: HTTP server
//
// A crashing gateway connection is restarted with backoff without taking the
// API down.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// Config holds supervisor tree settings.
type Config struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultConfig matches suture's own defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the process supervisor.
type Tree struct {
	root        *suture.Supervisor
	gateway     *suture.Supervisor
	maintenance *suture.Supervisor
	api         *suture.Supervisor
	cfg         Config
}

// New builds the tree. Suture events are logged through logger.
func New(logger *slog.Logger, cfg Config) *Tree {
	def := DefaultConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = def.FailureDecay
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = def.FailureBackoff
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	handler := &sutureslog.Handler{Logger: logger}
	spec := suture.Spec{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	rootSpec := spec
	rootSpec.EventHook = handler.MustHook()

	t := &Tree{
		root:        suture.New("playpulse", rootSpec),
		gateway:     suture.New("gateway", spec),
		maintenance: suture.New("maintenance", spec),
		api:         suture.New("api", spec),
		cfg:         cfg,
	}
	t.root.Add(t.gateway)
	t.root.Add(t.maintenance)
	t.root.Add(t.api)
	return t
}

// AddGatewayService adds an ingest or polling service.
func (t *Tree) AddGatewayService(svc suture.Service) suture.ServiceToken {
	return t.gateway.Add(svc)
}

// AddMaintenanceService adds a background maintenance job.
func (t *Tree) AddMaintenanceService(svc suture.Service) suture.ServiceToken {
	return t.maintenance.Add(svc)
}

// AddAPIService adds the HTTP server.
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// StopGatewayService stops one gateway service and waits for it to return,
// so in-flight ingest work finishes before the rest of the tree stops.
func (t *Tree) StopGatewayService(token suture.ServiceToken) error {
	return t.gateway.RemoveAndWait(token, t.cfg.ShutdownTimeout)
}

// ServeBackground starts the tree. The channel yields once it stops.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// Serve runs the tree until ctx is cancelled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// UnstoppedServiceReport lists services that ignored the shutdown timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
