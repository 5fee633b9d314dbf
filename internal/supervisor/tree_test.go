package supervisor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingService struct {
	name    string
	starts  atomic.Int32
	stopped atomic.Bool
	failN   int32
}

func (s *countingService) Serve(ctx context.Context) error {
	n := s.starts.Add(1)
	if n <= s.failN {
		return errors.New("boom")
	}
	<-ctx.Done()
	s.stopped.Store(true)
	return ctx.Err()
}

func (s *countingService) String() string { return s.name }

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testTree(buf *syncBuffer) *Tree {
	logger := slog.New(slog.NewTextHandler(buf, nil))
	return New(logger, Config{FailureBackoff: 10 * time.Millisecond, ShutdownTimeout: time.Second})
}

func TestNew_AppliesDefaults(t *testing.T) {
	tree := New(slog.Default(), Config{})
	assert.Equal(t, DefaultConfig(), tree.cfg)
}

func TestTree_RestartsFailedService(t *testing.T) {
	buf := &syncBuffer{}
	tree := testTree(buf)
	svc := &countingService{name: "flaky", failN: 2}
	tree.AddGatewayService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	require.Eventually(t, func() bool { return svc.starts.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-errCh

	assert.True(t, svc.stopped.Load())
	assert.Contains(t, buf.String(), "flaky")
}

func TestTree_StopGatewayServiceBeforeRest(t *testing.T) {
	tree := testTree(&syncBuffer{})
	ingest := &countingService{name: "ingest"}
	api := &countingService{name: "http"}
	reaper := &countingService{name: "reaper"}
	token := tree.AddGatewayService(ingest)
	tree.AddAPIService(api)
	tree.AddMaintenanceService(reaper)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)
	require.Eventually(t, func() bool {
		return ingest.starts.Load() == 1 && api.starts.Load() == 1 && reaper.starts.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, tree.StopGatewayService(token))
	assert.True(t, ingest.stopped.Load())
	assert.False(t, api.stopped.Load())

	cancel()
	<-errCh
	assert.True(t, api.stopped.Load())
	assert.True(t, reaper.stopped.Load())
}
