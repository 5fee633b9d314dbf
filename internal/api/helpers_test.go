package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/graaaaa/playpulse/internal/aggregate"
	"github.com/graaaaa/playpulse/internal/app"
	"github.com/graaaaa/playpulse/internal/clock"
	"github.com/graaaaa/playpulse/internal/model"
	"github.com/graaaaa/playpulse/internal/recorder"
	"github.com/graaaaa/playpulse/internal/registry"
	"github.com/graaaaa/playpulse/internal/store"
	"github.com/graaaaa/playpulse/internal/testutil"
	"github.com/graaaaa/playpulse/internal/tracker"
)

// okHandler is a simple handler that returns 200 OK.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// apiFixture wires the real services over a temp SQLite store.
type apiFixture struct {
	server   *Server
	store    store.Store
	clock    *clock.Fake
	registry *registry.Registry
	tracker  *tracker.Tracker
	recorder *recorder.Recorder
	event    model.Event
}

func newAPIFixture(t *testing.T, opts ...ServerOption) *apiFixture {
	t.Helper()
	ctx := context.Background()
	st := testutil.OpenStore(t)
	clk := clock.NewFake(testutil.T0)
	logger, _ := testutil.NewLogger()

	reg := registry.New(st, registry.Defaults{Name: "Default Event", Duration: 24 * time.Hour, Timezone: "UTC"},
		registry.WithClock(clk), registry.WithLogger(logger))
	event, err := reg.EnsureDefault(ctx, model.DefaultScope)
	require.NoError(t, err)

	tr := tracker.New(st, nil, tracker.WithClock(clk), tracker.WithLogger(logger))
	rec := recorder.New(st, recorder.WithClock(clk), recorder.WithLogger(logger))
	engine := aggregate.New(st, tr, aggregate.DefaultConfig(), aggregate.WithClock(clk), aggregate.WithLogger(logger))

	all := append([]ServerOption{
		WithDashboardUsecase(&app.DashboardService{Events: reg, Engine: engine}),
		WithEventsUsecase(&app.EventsService{Registry: reg, Engine: engine}),
	}, opts...)

	return &apiFixture{
		server:   NewServer("127.0.0.1:0", app.HealthService{Version: "test", Store: st}, all...),
		store:    st,
		clock:    clk,
		registry: reg,
		tracker:  tr,
		recorder: rec,
		event:    event,
	}
}

// do serves one request. mods adjust the request before it is sent.
func (f *apiFixture) do(method, path, body string, mods ...func(*http.Request)) *httptest.ResponseRecorder {
	return serve(f.server, method, path, body, mods...)
}

func serve(s *Server, method, path, body string, mods ...func(*http.Request)) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, m := range mods {
		m(req)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func withBasicAuth(user, pass string) func(*http.Request) {
	return func(r *http.Request) { r.SetBasicAuth(user, pass) }
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), "body: %s", rec.Body.String())
	return v
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[errorResponse](t, rec).Error
}

// mustField returns one top-level field of a JSON object without consuming
// the recorder body.
func mustField(t *testing.T, body []byte, name string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &m))
	v, ok := m[name]
	require.True(t, ok, "field %q missing in %s", name, body)
	return v
}
