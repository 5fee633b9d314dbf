package jobs_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/graaaaa/playpulse/internal/ingest/mocks"
	"github.com/graaaaa/playpulse/internal/jobs"
	"github.com/graaaaa/playpulse/internal/model"
	"github.com/graaaaa/playpulse/internal/testutil"
)

type recordedSnapshot struct {
	snap    model.PresenceSnapshot
	eventID int64
}

type stubRecorder struct {
	mu    sync.Mutex
	calls []recordedSnapshot
	err   error
}

func (s *stubRecorder) RecordPresence(_ context.Context, p model.PresenceSnapshot, eventID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, recordedSnapshot{snap: p, eventID: eventID})
	return nil
}

func (s *stubRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubEvents struct {
	active *model.Event
	err    error
}

func (s stubEvents) Active(context.Context, string) (*model.Event, error) {
	return s.active, s.err
}

type SnapshotPollerTestSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	source   *mocks.MockSnapshotSource
	recorder *stubRecorder
	logs     *testutil.LogBuffer
	poller   *jobs.SnapshotPoller
	snap     model.PresenceSnapshot
}

func (s *SnapshotPollerTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.source = mocks.NewMockSnapshotSource(s.ctrl)
	s.recorder = &stubRecorder{}
	s.snap = model.PresenceSnapshot{
		GuildScope:    "g1",
		TotalMembers:  30,
		OnlineMembers: 12,
		PlayingGames:  []model.GameCount{{Name: "Chess", Count: 4}},
	}
	s.poller = s.newPoller(stubEvents{active: &model.Event{ID: 9}})
}

func (s *SnapshotPollerTestSuite) newPoller(events jobs.ActiveEvents) *jobs.SnapshotPoller {
	logger, buf := testutil.NewLogger()
	s.logs = buf
	return jobs.NewSnapshotPoller(s.source, s.recorder, events, jobs.PollerConfig{
		Scope:           "g1",
		Interval:        10 * time.Millisecond,
		BreakerFailures: 2,
		BreakerCooldown: time.Hour,
	}, jobs.WithLogger(logger))
}

func (s *SnapshotPollerTestSuite) TestPollOnce_RecordsAgainstActiveEvent() {
	s.source.EXPECT().Snapshot(gomock.Any()).Return(s.snap, nil)

	s.Require().NoError(s.poller.PollOnce(context.Background()))

	s.Require().Len(s.recorder.calls, 1)
	s.Equal(int64(9), s.recorder.calls[0].eventID)
	s.Equal(s.snap, s.recorder.calls[0].snap)
}

func (s *SnapshotPollerTestSuite) TestPollOnce_NoActiveEvent() {
	s.poller = s.newPoller(stubEvents{})
	s.source.EXPECT().Snapshot(gomock.Any()).Return(s.snap, nil)

	err := s.poller.PollOnce(context.Background())
	s.ErrorIs(err, model.ErrNotFound)
	s.Empty(s.recorder.calls)
}

func (s *SnapshotPollerTestSuite) TestPollOnce_RecorderError() {
	s.recorder.err = model.Persistence("insert member snapshot", errors.New("locked"))
	s.source.EXPECT().Snapshot(gomock.Any()).Return(s.snap, nil)

	s.ErrorIs(s.poller.PollOnce(context.Background()), model.ErrPersistence)
}

func (s *SnapshotPollerTestSuite) TestBreakerOpensAfterConsecutiveFailures() {
	gatewayDown := errors.New("gateway down")
	s.source.EXPECT().Snapshot(gomock.Any()).Return(model.PresenceSnapshot{}, gatewayDown).Times(2)

	s.ErrorIs(s.poller.PollOnce(context.Background()), gatewayDown)
	s.ErrorIs(s.poller.PollOnce(context.Background()), gatewayDown)
	s.Equal(gobreaker.StateOpen.String(), s.poller.BreakerState())

	// Open breaker short-circuits without calling the gateway.
	s.ErrorIs(s.poller.PollOnce(context.Background()), gobreaker.ErrOpenState)
	s.Contains(s.logs.String(), "circuit breaker state changed")
}

func (s *SnapshotPollerTestSuite) TestServe_RetriesAfterFailure() {
	first := true
	var mu sync.Mutex
	s.source.EXPECT().Snapshot(gomock.Any()).DoAndReturn(func(context.Context) (model.PresenceSnapshot, error) {
		mu.Lock()
		defer mu.Unlock()
		if first {
			first = false
			return model.PresenceSnapshot{}, errors.New("transient")
		}
		return s.snap, nil
	}).MinTimes(2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.poller.Serve(ctx) }()

	s.Eventually(func() bool { return s.recorder.count() >= 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	s.ErrorIs(<-done, context.Canceled)
	s.Contains(s.logs.String(), "job iteration failed")
}

func (s *SnapshotPollerTestSuite) TestString() {
	s.Equal("snapshot_poller", s.poller.String())
}

func TestSnapshotPollerTestSuite(t *testing.T) {
	suite.Run(t, new(SnapshotPollerTestSuite))
}
