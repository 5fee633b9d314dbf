//go:build integration

// Package integration runs the full pipeline end to end: a scripted presence
// source feeds the ingester, the tracker and recorder write to SQLite, and
// the HTTP API reads it back.
package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/graaaaa/playpulse/internal/aggregate"
	"github.com/graaaaa/playpulse/internal/api"
	"github.com/graaaaa/playpulse/internal/app"
	"github.com/graaaaa/playpulse/internal/clock"
	"github.com/graaaaa/playpulse/internal/config"
	"github.com/graaaaa/playpulse/internal/ingest"
	"github.com/graaaaa/playpulse/internal/jobs"
	"github.com/graaaaa/playpulse/internal/keylock"
	"github.com/graaaaa/playpulse/internal/model"
	"github.com/graaaaa/playpulse/internal/recorder"
	"github.com/graaaaa/playpulse/internal/registry"
	"github.com/graaaaa/playpulse/internal/store"
	"github.com/graaaaa/playpulse/internal/store/backend"
	"github.com/graaaaa/playpulse/internal/testutil"
	"github.com/graaaaa/playpulse/internal/tracker"
)

const scope = "g1"

// TestApp holds every wired component.
type TestApp struct {
	Server   *httptest.Server
	Store    store.Store
	Clock    *clock.Fake
	Registry *registry.Registry
	Tracker  *tracker.Tracker
	Recorder *recorder.Recorder
	Event    model.Event
}

type testAppConfig struct {
	username string
	password string
	redis    bool
}

// TestAppOption configures a test app.
type TestAppOption func(*testAppConfig)

// WithAuth enables the admin guard.
func WithAuth(username, password string) TestAppOption {
	return func(cfg *testAppConfig) {
		cfg.username = username
		cfg.password = password
	}
}

// WithRedisLock uses the Redis key lock against an in-memory server.
func WithRedisLock() TestAppOption {
	return func(cfg *testAppConfig) { cfg.redis = true }
}

// NewTestApp wires the full stack over a temporary SQLite database opened
// through the same backend selector the server uses.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()
	var cfg testAppConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()
	st, err := backend.Open(ctx, config.StorageConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "playpulse.sqlite"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	logger, _ := testutil.NewLogger()
	clk := clock.NewFake(testutil.T0)

	var locker keylock.Locker
	if cfg.redis {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		locker, err = keylock.NewRedis(ctx, &keylock.RedisConfig{Client: client})
		require.NoError(t, err)
	}

	reg := registry.New(st, registry.Defaults{Name: "Launch", Duration: 24 * time.Hour, Timezone: "UTC"},
		registry.WithClock(clk), registry.WithLogger(logger))
	ev, err := reg.EnsureDefault(ctx, scope)
	require.NoError(t, err)

	tr := tracker.New(st, locker, tracker.WithClock(clk), tracker.WithLogger(logger))
	rec := recorder.New(st, recorder.WithClock(clk), recorder.WithLogger(logger))
	engine := aggregate.New(st, tr, aggregate.DefaultConfig(), aggregate.WithClock(clk), aggregate.WithLogger(logger))

	serverOpts := []api.ServerOption{
		api.WithDashboardUsecase(&app.DashboardService{Events: reg, Engine: engine, Scope: scope}),
		api.WithEventsUsecase(&app.EventsService{Registry: reg, Engine: engine, Scope: scope}),
	}
	if cfg.username != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.password), bcrypt.MinCost)
		require.NoError(t, err)
		serverOpts = append(serverOpts, api.WithAdminAuth(cfg.username, string(hash)))
	}
	server := api.NewServer("127.0.0.1:0", app.HealthService{Version: "test", Store: st}, serverOpts...)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &TestApp{
		Server:   ts,
		Store:    st,
		Clock:    clk,
		Registry: reg,
		Tracker:  tr,
		Recorder: rec,
		Event:    ev,
	}
}

// URL returns the base URL of the test server.
func (a *TestApp) URL() string {
	return a.Server.URL
}

// Ingest runs changes through a real Ingester and waits for them to be
// written.
func (a *TestApp) Ingest(t *testing.T, changes ...ingest.PresenceChange) {
	t.Helper()
	src := &scriptedSource{changes: changes}
	logger, _ := testutil.NewLogger()
	ing := ingest.New(src, a.Tracker, a.Registry, scope, ingest.WithLogger(logger))

	svc := jobs.NewIngestService(ing, 5*time.Second)
	require.NoError(t, svc.Serve(context.Background()))
}

// scriptedSource emits a fixed list then closes.
type scriptedSource struct {
	changes []ingest.PresenceChange
}

func (s *scriptedSource) Start(ctx context.Context) (<-chan ingest.PresenceChange, <-chan error, error) {
	out := make(chan ingest.PresenceChange, len(s.changes))
	errs := make(chan error)
	for _, c := range s.changes {
		out <- c
	}
	close(out)
	close(errs)
	return out, errs, nil
}

func change(user, game string, action model.ActivityAction, at time.Time) ingest.PresenceChange {
	return ingest.PresenceChange{UserID: user, Game: game, Action: action, At: at}
}

func (a *TestApp) do(t *testing.T, method, path, body string, auth ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, a.URL()+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(auth) == 2 {
		req.SetBasicAuth(auth[0], auth[1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}
