package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/graaaaa/playpulse/internal/clock"
)

// RateLimiter provides per-IP token bucket rate limiting.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	idle     time.Duration
	clock    clock.Clock
	stopOnce sync.Once
	done     chan struct{}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// Rate is requests per second allowed per IP.
	Rate float64
	// Burst is the maximum burst size.
	Burst int
	// CleanupInterval is how often idle visitors are dropped.
	CleanupInterval time.Duration
	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// DefaultRateLimiterConfig returns 10 requests/second with a burst of 20.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Rate:            10,
		Burst:           20,
		CleanupInterval: 5 * time.Minute,
	}
}

// NewRateLimiter creates a rate limiter and starts its cleanup goroutine.
// Call Stop to release it.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	def := DefaultRateLimiterConfig()
	if cfg.Rate <= 0 {
		cfg.Rate = def.Rate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}

	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(cfg.Rate),
		burst:    cfg.Burst,
		idle:     cfg.CleanupInterval,
		clock:    cfg.Clock,
		done:     make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow reports whether a request from ip may proceed now.
func (rl *RateLimiter) Allow(ip string) bool {
	now := rl.clock.Now()

	rl.mu.Lock()
	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	rl.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.idle)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.removeIdle()
		case <-rl.done:
			return
		}
	}
}

// removeIdle drops visitors unseen for two cleanup intervals.
func (rl *RateLimiter) removeIdle() {
	threshold := rl.clock.Now().Add(-2 * rl.idle)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, v := range rl.visitors {
		if v.lastSeen.Before(threshold) {
			delete(rl.visitors, ip)
		}
	}
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// Stop stops the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.done)
	})
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(extractIP(r)) {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractIP returns the host part of RemoteAddr. Forwarding headers are not
// trusted.
func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// AuthFailureLimiter locks out IPs after repeated admin auth failures.
type AuthFailureLimiter struct {
	mu       sync.Mutex
	failures map[string]*authFailure
	maxFails int
	window   time.Duration
	lockout  time.Duration
	clock    clock.Clock
}

type authFailure struct {
	count    int
	firstAt  time.Time
	lockedAt time.Time
}

// AuthFailureLimiterConfig configures auth failure limiting.
type AuthFailureLimiterConfig struct {
	MaxFailures   int           // failures before lockout
	Window        time.Duration // window for counting failures
	LockoutPeriod time.Duration
	Clock         clock.Clock
}

// DefaultAuthFailureLimiterConfig returns 5 failures per 5 minutes, then a
// 15 minute lockout.
func DefaultAuthFailureLimiterConfig() AuthFailureLimiterConfig {
	return AuthFailureLimiterConfig{
		MaxFailures:   5,
		Window:        5 * time.Minute,
		LockoutPeriod: 15 * time.Minute,
	}
}

// NewAuthFailureLimiter creates a new auth failure limiter.
func NewAuthFailureLimiter(cfg AuthFailureLimiterConfig) *AuthFailureLimiter {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	return &AuthFailureLimiter{
		failures: make(map[string]*authFailure),
		maxFails: cfg.MaxFailures,
		window:   cfg.Window,
		lockout:  cfg.LockoutPeriod,
		clock:    cfg.Clock,
	}
}

// IsLocked reports whether ip is currently locked out.
func (afl *AuthFailureLimiter) IsLocked(ip string) bool {
	afl.mu.Lock()
	defer afl.mu.Unlock()

	f, ok := afl.failures[ip]
	if !ok || f.lockedAt.IsZero() {
		return false
	}
	return afl.clock.Now().Sub(f.lockedAt) < afl.lockout
}

// RecordFailure records a failure for ip and returns the attempts left, or
// -1 once the IP is locked.
func (afl *AuthFailureLimiter) RecordFailure(ip string) int {
	afl.mu.Lock()
	defer afl.mu.Unlock()

	now := afl.clock.Now()
	f, ok := afl.failures[ip]
	if !ok || now.Sub(f.firstAt) > afl.window {
		afl.failures[ip] = &authFailure{count: 1, firstAt: now}
		return afl.maxFails - 1
	}

	f.count++
	if f.count >= afl.maxFails {
		f.lockedAt = now
		return -1
	}
	return afl.maxFails - f.count
}

// RecordSuccess clears the failure record for ip.
func (afl *AuthFailureLimiter) RecordSuccess(ip string) {
	afl.mu.Lock()
	defer afl.mu.Unlock()
	delete(afl.failures, ip)
}

// LockoutSecondsRemaining returns the seconds until ip's lockout expires.
func (afl *AuthFailureLimiter) LockoutSecondsRemaining(ip string) int {
	afl.mu.Lock()
	defer afl.mu.Unlock()

	f, ok := afl.failures[ip]
	if !ok || f.lockedAt.IsZero() {
		return 0
	}
	remaining := afl.lockout - afl.clock.Now().Sub(f.lockedAt)
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Seconds()) + 1
}
