package keylock

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// BackoffConfig configures exponential backoff between lock attempts.
type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0 to 1.0
}

// DefaultBackoffConfig suits short critical sections.
var DefaultBackoffConfig = BackoffConfig{
	InitialDelay: 10 * time.Millisecond,
	MaxDelay:     500 * time.Millisecond,
	Multiplier:   2.0,
	JitterFactor: 0.2,
}

// BackoffCalculator calculates exponential backoff with jitter.
// It uses its own RNG instance for thread safety and test determinism.
type BackoffCalculator struct {
	cfg BackoffConfig
	rng *rand.Rand
	mu  sync.Mutex
}

// NewBackoffCalculator creates a new BackoffCalculator with a random seed.
func NewBackoffCalculator(cfg BackoffConfig) *BackoffCalculator {
	return NewBackoffCalculatorWithSeed(cfg, time.Now().UnixNano())
}

// NewBackoffCalculatorWithSeed creates a BackoffCalculator with a specific seed.
func NewBackoffCalculatorWithSeed(cfg BackoffConfig, seed int64) *BackoffCalculator {
	return &BackoffCalculator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Calculate returns the delay for the given attempt number (0-indexed).
func (b *BackoffCalculator) Calculate(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(b.cfg.InitialDelay) * math.Pow(b.cfg.Multiplier, float64(attempt))
	if delay > float64(b.cfg.MaxDelay) {
		delay = float64(b.cfg.MaxDelay)
	}

	// Jitter in [-JitterFactor, +JitterFactor] * delay
	if b.cfg.JitterFactor > 0 {
		b.mu.Lock()
		jitter := delay * b.cfg.JitterFactor * (b.rng.Float64()*2 - 1)
		b.mu.Unlock()
		delay += jitter
	}

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}
