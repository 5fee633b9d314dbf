package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/thejerf/suture/v4"

	"github.com/graaaaa/playpulse/internal/aggregate"
	"github.com/graaaaa/playpulse/internal/api"
	"github.com/graaaaa/playpulse/internal/app"
	"github.com/graaaaa/playpulse/internal/config"
	"github.com/graaaaa/playpulse/internal/ingest"
	"github.com/graaaaa/playpulse/internal/jobs"
	"github.com/graaaaa/playpulse/internal/keylock"
	"github.com/graaaaa/playpulse/internal/logging"
	"github.com/graaaaa/playpulse/internal/recorder"
	"github.com/graaaaa/playpulse/internal/registry"
	"github.com/graaaaa/playpulse/internal/store"
	"github.com/graaaaa/playpulse/internal/store/backend"
	"github.com/graaaaa/playpulse/internal/store/sqlite"
	"github.com/graaaaa/playpulse/internal/supervisor"
	"github.com/graaaaa/playpulse/internal/tracker"
	"github.com/graaaaa/playpulse/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway ingest, background jobs and the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("version", version.String()).
		Str("driver", cfg.Storage.Driver).
		Str("scope", cfg.Tracking.Scope).
		Msg("starting playpulse")

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Warn().Err(err).Msg("failed to close store")
		}
	}()

	locker, closeLocker, err := openLocker(ctx, cfg.Lock)
	if err != nil {
		return err
	}
	defer closeLocker()

	reg := registry.New(st, registry.Defaults{
		Name:     cfg.DefaultEvent.Name,
		Duration: cfg.DefaultEvent.Duration,
		Timezone: cfg.DefaultEvent.Timezone,
	})
	active, err := reg.EnsureDefault(ctx, cfg.Tracking.Scope)
	if err != nil {
		return fmt.Errorf("ensure default event: %w", err)
	}
	logging.Info().Int64("event_id", active.ID).Str("event", active.Name).Msg("active event")

	tr := tracker.New(st, locker, tracker.WithStaleAfter(cfg.Tracking.StaleAfter))
	rec := recorder.New(st)
	engine := aggregate.New(st, tr, aggregate.Config{
		StaleAfter:       cfg.Tracking.StaleAfter,
		FreshnessWindow:  cfg.Tracking.FreshnessWindow,
		SamplingInterval: cfg.Tracking.SamplingInterval,
		QueryTimeout:     cfg.Tracking.QueryTimeout,
		ActivityLookback: cfg.Tracking.ActivityLookback,
	})

	server, limiter, err := newServer(st, reg, engine)
	if err != nil {
		return err
	}
	if limiter != nil {
		defer limiter.Stop()
	}

	tree := supervisor.New(logging.NewSlogger(), supervisor.Config{ShutdownTimeout: cfg.Server.ShutdownTimeout})
	tree.AddAPIService(jobs.NewHTTPService(server, cfg.Server.ShutdownTimeout))
	tree.AddMaintenanceService(jobs.NewReaper(tr, cfg.Tracking.ReapInterval, cfg.Tracking.StaleAfter))

	var ingestToken *suture.ServiceToken
	if cfg.Gateway.Enabled {
		source, err := ingest.NewDiscord(ingest.DiscordConfig{
			Token:   cfg.Gateway.Token.Value(),
			GuildID: cfg.Gateway.GuildID,
		})
		if err != nil {
			return err
		}
		ing := ingest.New(source, tr, reg, cfg.Tracking.Scope, ingest.WithWorkers(cfg.Tracking.IngestWorkers))
		token := tree.AddGatewayService(jobs.NewIngestService(ing, cfg.Server.ShutdownTimeout))
		ingestToken = &token
		tree.AddGatewayService(jobs.NewSnapshotPoller(source, rec, reg, jobs.PollerConfig{
			Scope:    cfg.Tracking.Scope,
			Interval: cfg.Tracking.SamplingInterval,
		}))
	} else {
		logging.Warn().Msg("gateway disabled; serving stored data only")
	}

	treeCtx, cancelTree := context.WithCancel(context.Background())
	defer cancelTree()
	treeErr := tree.ServeBackground(treeCtx)
	logging.Info().Str("addr", cfg.Server.Addr).Msg("http server listening")

	select {
	case <-ctx.Done():
		logging.Info().Msg("shutting down")
	case err := <-treeErr:
		return fmt.Errorf("supervisor stopped: %w", err)
	}

	// Gateway first so queued presence changes are written while the store
	// is still open; then the HTTP server and jobs.
	if ingestToken != nil {
		if err := tree.StopGatewayService(*ingestToken); err != nil {
			logging.Warn().Err(err).Msg("ingest did not stop cleanly")
		}
	}
	cancelTree()
	<-treeErr

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		logging.Warn().Int("count", len(report)).Msg("services did not stop within timeout")
	}
	logging.Info().Msg("shutdown complete")
	return nil
}

// openStore opens the configured backend and runs the embedded backend's
// periodic VACUUM.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := backend.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if u, ok := st.(interface{ Unwrap() store.Store }); ok {
		if s, ok := u.Unwrap().(*sqlite.Store); ok {
			if ran, err := s.VacuumIfNeeded(ctx); err != nil {
				logging.Warn().Err(err).Msg("vacuum failed")
			} else if ran {
				logging.Info().Msg("database vacuumed")
			}
		}
	}
	return st, nil
}

func openLocker(ctx context.Context, lc config.LockConfig) (keylock.Locker, func(), error) {
	if lc.Backend != config.LockRedis {
		return keylock.NewLocal(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     lc.RedisAddr,
		Password: lc.RedisPassword.Value(),
		DB:       lc.RedisDB,
	})
	locker, err := keylock.NewRedis(ctx, &keylock.RedisConfig{Client: client, TTL: lc.TTL})
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	logging.Info().Str("addr", lc.RedisAddr).Msg("using redis key lock")
	return locker, func() { _ = client.Close() }, nil
}

func newServer(st store.Store, reg *registry.Registry, engine *aggregate.Engine) (*api.Server, *api.RateLimiter, error) {
	sc := cfg.Server

	if sc.AdminPasswordHash.IsEmpty() && !isLoopback(sc.Addr) {
		password, err := config.EnsureAdminCredentials(&sc)
		if err != nil {
			return nil, nil, err
		}
		if password != "" {
			fmt.Fprintln(os.Stderr, "=== ADMIN CREDENTIALS GENERATED ===")
			fmt.Fprintf(os.Stderr, "Username: %s\nPassword: %s\n", sc.AdminUser, password)
			fmt.Fprintln(os.Stderr, "Set server.admin_password_hash to keep them across restarts.")
			fmt.Fprintln(os.Stderr, "===================================")
		}
	}

	opts := []api.ServerOption{
		api.WithDashboardUsecase(&app.DashboardService{Events: reg, Engine: engine, Scope: cfg.Tracking.Scope}),
		api.WithEventsUsecase(&app.EventsService{Registry: reg, Engine: engine, Scope: cfg.Tracking.Scope}),
		api.WithCORSOrigins(sc.CORSOrigins),
		api.WithMetricsHandler(promhttp.Handler()),
		api.WithTimeouts(sc.ReadTimeout, sc.WriteTimeout),
	}
	if !sc.AdminPasswordHash.IsEmpty() {
		opts = append(opts, api.WithAdminAuth(sc.AdminUser, sc.AdminPasswordHash.Value()))
	} else {
		logging.Warn().Msg("admin auth disabled; event mutations are open to loopback clients")
	}

	var limiter *api.RateLimiter
	if sc.RateLimit > 0 {
		rlc := api.DefaultRateLimiterConfig()
		rlc.Rate = sc.RateLimit
		if sc.RateBurst > 0 {
			rlc.Burst = sc.RateBurst
		}
		limiter = api.NewRateLimiter(rlc)
		opts = append(opts, api.WithRateLimiter(limiter))
	}

	health := app.HealthService{Version: version.String(), Store: st}
	return api.NewServer(sc.Addr, health, opts...), limiter, nil
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// reapOnce is shared with the reap subcommand.
func reapOnce(ctx context.Context, st store.Store, maxAge time.Duration) (int, error) {
	return tracker.New(st, nil, tracker.WithStaleAfter(cfg.Tracking.StaleAfter)).ReapStale(ctx, maxAge)
}
