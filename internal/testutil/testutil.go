// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/graaaaa/playpulse/internal/logging"
	"github.com/graaaaa/playpulse/internal/model"
	"github.com/graaaaa/playpulse/internal/store"
	"github.com/graaaaa/playpulse/internal/store/sqlite"
)

// T0 is the reference instant for deterministic tests.
var T0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// OpenStore opens an empty SQLite store in a temp dir, closed on cleanup.
func OpenStore(t testing.TB) store.Store {
	t.Helper()
	st, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// CreateEvent inserts an active event in scope spanning [start, start+24h).
func CreateEvent(t testing.TB, st store.Store, scope string, start time.Time) model.Event {
	t.Helper()
	ctx := context.Background()
	e := model.Event{
		Name:         "test event",
		StartTime:    start,
		EndTime:      start.Add(24 * time.Hour),
		Timezone:     "UTC",
		GuildScopeID: scope,
		CreatedAt:    start,
		UpdatedAt:    start,
	}
	if err := st.CreateEvent(ctx, &e); err != nil {
		t.Fatalf("create event: %v", err)
	}
	if err := st.SetActiveEvent(ctx, scope, e.ID, start); err != nil {
		t.Fatalf("activate event: %v", err)
	}
	e.IsActive = true
	return e
}

// LogBuffer is a concurrency-safe buffer for capturing log output.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns everything written so far.
func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// NewLogger returns a JSON logger writing into a fresh LogBuffer.
func NewLogger() (zerolog.Logger, *LogBuffer) {
	buf := &LogBuffer{}
	return logging.NewTestLogger(buf), buf
}
