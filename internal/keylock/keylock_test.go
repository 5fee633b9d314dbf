package keylock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func exerciseMutualExclusion(t *testing.T, l Locker) {
	t.Helper()
	var (
		inside   atomic.Int32
		overlaps atomic.Int32
		wg       sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), Key("u1", "game"))
			if !assert.NoError(t, err) {
				return
			}
			if inside.Add(1) > 1 {
				overlaps.Add(1)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Zero(t, overlaps.Load())
}

func TestKey(t *testing.T) {
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
	assert.Equal(t, Key("a", "b"), Key("a", "b"))
}

func TestLocal_MutualExclusion(t *testing.T) {
	exerciseMutualExclusion(t, NewLocal())
}

func TestLocal_DistinctKeysDoNotBlock(t *testing.T) {
	l := NewLocal()
	unlockA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLocal_ContextCancelled(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.Equal(t, 0, l.size())
}

func TestLocal_UnlockIdempotent(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
	unlock()
	assert.Equal(t, 0, l.size())
}

func TestBackoffCalculator_Bounds(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 40 * time.Millisecond, Multiplier: 2}
	b := NewBackoffCalculatorWithSeed(cfg, 1)

	assert.Equal(t, 10*time.Millisecond, b.Calculate(0))
	assert.Equal(t, 20*time.Millisecond, b.Calculate(1))
	assert.Equal(t, 40*time.Millisecond, b.Calculate(5))
	assert.Equal(t, 10*time.Millisecond, b.Calculate(-1))
}

type RedisLockerTestSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *redis.Client
	locker *Redis
}

func (s *RedisLockerTestSuite) SetupTest() {
	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.mr = mr

	s.client = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})

	locker, err := NewRedis(context.Background(), &RedisConfig{
		Client:  s.client,
		TTL:     5 * time.Second,
		Backoff: BackoffConfig{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2},
	})
	s.Require().NoError(err)
	s.locker = locker
}

func (s *RedisLockerTestSuite) TearDownTest() {
	s.client.Close()
	s.mr.Close()
}

func TestRedisLockerTestSuite(t *testing.T) {
	suite.Run(t, new(RedisLockerTestSuite))
}

func (s *RedisLockerTestSuite) TestMutualExclusion() {
	exerciseMutualExclusion(s.T(), s.locker)
}

func (s *RedisLockerTestSuite) TestUnlockReleasesKey() {
	unlock, err := s.locker.Lock(context.Background(), "k")
	s.Require().NoError(err)
	s.True(s.mr.Exists(keyPrefix + "k"))

	unlock()
	s.False(s.mr.Exists(keyPrefix + "k"))
}

func (s *RedisLockerTestSuite) TestUnlockKeepsForeignToken() {
	unlock, err := s.locker.Lock(context.Background(), "k")
	s.Require().NoError(err)

	// Simulate expiry and takeover by another holder.
	s.Require().NoError(s.mr.Set(keyPrefix+"k", "someone-else"))
	unlock()

	v, err := s.mr.Get(keyPrefix + "k")
	s.Require().NoError(err)
	s.Equal("someone-else", v)
}

func (s *RedisLockerTestSuite) TestContextCancelledWhileWaiting() {
	unlock, err := s.locker.Lock(context.Background(), "k")
	s.Require().NoError(err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.locker.Lock(ctx, "k")
	s.ErrorIs(err, context.DeadlineExceeded)
}

func TestNewRedis_NilClient(t *testing.T) {
	_, err := NewRedis(context.Background(), nil)
	assert.Error(t, err)
}
