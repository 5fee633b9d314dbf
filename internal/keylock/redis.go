package keylock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/graaaaa/playpulse/internal/logging"
)

const keyPrefix = "playpulse:lock:"

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig configures a Redis-backed Locker.
type RedisConfig struct {
	Client *redis.Client
	// TTL bounds how long a crashed holder can block a key.
	TTL     time.Duration
	Backoff BackoffConfig
}

// Redis is a Locker shared by every process pointing at the same Redis.
type Redis struct {
	client  *redis.Client
	ttl     time.Duration
	backoff *BackoffCalculator
}

// NewRedis creates a Redis-backed Locker and checks connectivity.
func NewRedis(ctx context.Context, cfg *RedisConfig) (*Redis, error) {
	if cfg == nil || cfg.Client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if err := cfg.Client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	bc := cfg.Backoff
	if bc.InitialDelay <= 0 {
		bc = DefaultBackoffConfig
	}

	return &Redis{
		client:  cfg.Client,
		ttl:     ttl,
		backoff: NewBackoffCalculator(bc),
	}, nil
}

// Lock polls SET NX until the key is acquired or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	for attempt := 0; ; attempt++ {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(r.backoff.Calculate(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return func() {
		// Release must not be cut short by the caller's context.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, r.client, []string{redisKey}, token).Err(); err != nil {
			logging.Warn().Err(err).Str("key", redisKey).Msg("release lock failed")
		}
	}, nil
}
