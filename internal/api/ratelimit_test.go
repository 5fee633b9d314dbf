package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/graaaaa/playpulse/internal/clock"
	"github.com/graaaaa/playpulse/internal/testutil"
)

func newTestLimiter(t *testing.T, burst int) (*RateLimiter, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(testutil.T0)
	rl := NewRateLimiter(RateLimiterConfig{
		Rate:            1,
		Burst:           burst,
		CleanupInterval: time.Hour,
		Clock:           clk,
	})
	t.Cleanup(rl.Stop)
	return rl, clk
}

func TestRateLimiter_Allow(t *testing.T) {
	rl, clk := newTestLimiter(t, 5)
	ip := "192.168.1.100"

	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow(ip), "request %d within burst", i+1)
	}
	assert.False(t, rl.Allow(ip), "burst exceeded")

	clk.Advance(time.Second)
	assert.True(t, rl.Allow(ip), "one token refilled")
}

func TestRateLimiter_DifferentIPs(t *testing.T) {
	rl, _ := newTestLimiter(t, 2)

	rl.Allow("192.168.1.100")
	rl.Allow("192.168.1.100")
	assert.False(t, rl.Allow("192.168.1.100"))
	assert.True(t, rl.Allow("192.168.1.101"))
}

func TestRateLimiter_RemoveIdle(t *testing.T) {
	rl, clk := newTestLimiter(t, 2)

	rl.Allow("10.0.0.1")
	clk.Advance(90 * time.Minute)
	rl.Allow("10.0.0.2")
	clk.Advance(time.Hour)

	rl.removeIdle()
	assert.Equal(t, 1, rl.size(), "only the visitor seen within two intervals is kept")
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl, _ := newTestLimiter(t, 2)
	handler := rl.Middleware(okHandler)

	serve := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/current", nil)
		req.RemoteAddr = "192.168.1.100:12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, serve().Code)
	assert.Equal(t, http.StatusOK, serve().Code)

	rec := serve()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
}

func TestAuthFailureLimiter_Lockout(t *testing.T) {
	clk := clock.NewFake(testutil.T0)
	afl := NewAuthFailureLimiter(AuthFailureLimiterConfig{
		MaxFailures:   3,
		Window:        time.Minute,
		LockoutPeriod: time.Minute,
		Clock:         clk,
	})
	ip := "192.168.1.100"

	assert.False(t, afl.IsLocked(ip))
	assert.Equal(t, 2, afl.RecordFailure(ip))
	assert.Equal(t, 1, afl.RecordFailure(ip))
	assert.Equal(t, -1, afl.RecordFailure(ip))

	assert.True(t, afl.IsLocked(ip))
	assert.Equal(t, 61, afl.LockoutSecondsRemaining(ip))

	clk.Advance(time.Minute)
	assert.False(t, afl.IsLocked(ip), "lockout expires")
	assert.Zero(t, afl.LockoutSecondsRemaining(ip))
}

func TestAuthFailureLimiter_WindowResets(t *testing.T) {
	clk := clock.NewFake(testutil.T0)
	afl := NewAuthFailureLimiter(AuthFailureLimiterConfig{
		MaxFailures:   3,
		Window:        time.Minute,
		LockoutPeriod: time.Minute,
		Clock:         clk,
	})
	ip := "192.168.1.100"

	afl.RecordFailure(ip)
	afl.RecordFailure(ip)
	clk.Advance(2 * time.Minute)
	assert.Equal(t, 2, afl.RecordFailure(ip), "old failures fall out of the window")
}

func TestAuthFailureLimiter_SuccessClears(t *testing.T) {
	afl := NewAuthFailureLimiter(AuthFailureLimiterConfig{
		MaxFailures:   3,
		Window:        time.Minute,
		LockoutPeriod: time.Minute,
	})
	ip := "192.168.1.100"

	afl.RecordFailure(ip)
	afl.RecordFailure(ip)
	afl.RecordSuccess(ip)
	assert.Equal(t, 2, afl.RecordFailure(ip))
}
