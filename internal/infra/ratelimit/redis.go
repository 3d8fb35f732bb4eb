package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"boost/internal/domain"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces limiter counters away from anything else living in
// the same redis database.
const keyPrefix = "boost:ratelimit:"

// fixedWindowScript bumps the hit counter and stamps the window expiry in
// one round trip. The PTTL re-check also repairs counters that lost their
// expiry, which would otherwise rate-limit a key forever.
var fixedWindowScript = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
  redis.call("PEXPIRE", KEYS[1], ttl)
end
return {hits, ttl}
`)

type RedisLimiterConfig struct {
	Addr     string
	Password string
	DB       int
	Now      func() time.Time
}

type redisLimiter struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisLimiter(cfg RedisLimiterConfig) (domain.RateLimiter, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &redisLimiter{rdb: rdb, now: cfg.Now}, nil
}

func (r *redisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	windowMillis := window.Milliseconds()
	if windowMillis < 1 {
		windowMillis = 1000
	}
	values, err := fixedWindowScript.Run(ctx, r.rdb, []string{keyPrefix + key}, windowMillis).Int64Slice()
	if err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("redis rate limit: %w", err)
	}
	if len(values) != 2 {
		return domain.RateLimitDecision{}, fmt.Errorf("redis rate limit: %d reply values, want 2", len(values))
	}
	return r.decide(limit, values[0], values[1]), nil
}

// decide folds one script reply into a decision.
func (r *redisLimiter) decide(limit int, hits, ttlMillis int64) domain.RateLimitDecision {
	decision := domain.RateLimitDecision{
		Allowed: hits <= int64(limit),
		Limit:   limit,
		ResetAt: r.now().Add(time.Duration(ttlMillis) * time.Millisecond),
	}
	if left := int64(limit) - hits; left > 0 {
		decision.Remaining = int(left)
	}
	return decision
}
