// ratelimit.go -- Attempt limiting for credential endpoints.
//
// RedisRateLimiter is shared across instances; MemoryRateLimiter serves the
// single-instance memory backend. Both satisfy auth.RateLimiter.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// allowScript counts an attempt and flips to lockout once the count passes max.
// Returns 1 if allowed, 0 if locked out.
// KEYS[1] = attempts key, KEYS[2] = lock key,
// ARGV[1] = max attempts, ARGV[2] = window ms, ARGV[3] = lockout ms.
var allowScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
    return 0
end
local n = redis.call('INCR', KEYS[1])
if n == 1 then
    redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
if n > tonumber(ARGV[1]) then
    redis.call('SET', KEYS[2], '1', 'PX', ARGV[3])
    redis.call('DEL', KEYS[1])
    return 0
end
return 1
`)

// RedisRateLimiter tracks attempts in Redis.
type RedisRateLimiter struct {
	rdb *redis.Client
}

// NewRedisRateLimiter wraps the shared Redis client.
func NewRedisRateLimiter(rdb *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{rdb: rdb}
}

// Allow records an attempt for key under policy.
// Returns ErrRateLimitExceeded while locked out; a zero MaxAttempts disables limiting.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string, policy RateLimit) error {
	if policy.MaxAttempts <= 0 {
		return nil
	}
	if policy.Window <= 0 || policy.LockoutTTL <= 0 {
		return fmt.Errorf("invalid rate limit policy for %q: window and lockout must be positive", key)
	}

	ok, err := allowScript.Run(ctx, l.rdb,
		[]string{"ratelimit:" + key, "ratelimit:lock:" + key},
		policy.MaxAttempts, policy.Window.Milliseconds(), policy.LockoutTTL.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("checking rate limit: %w", err)
	}
	if ok == 0 {
		return ErrRateLimitExceeded
	}
	return nil
}

// memoryLimit is one key's bucket plus its lockout deadline.
type memoryLimit struct {
	limiter     *rate.Limiter
	lockedUntil time.Time
}

// MemoryRateLimiter keeps a token bucket per key in an expiring LRU.
// A key idle longer than the LRU TTL starts over with a full bucket.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	buckets *expirable.LRU[string, *memoryLimit]
	now     func() time.Time
}

// NewMemoryRateLimiter holds up to size keys, each forgotten after ttl of inactivity.
func NewMemoryRateLimiter(size int, ttl time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		buckets: expirable.NewLRU[string, *memoryLimit](size, nil, ttl),
		now:     time.Now,
	}
}

// Allow refills MaxAttempts tokens per Window; an empty bucket locks the key for LockoutTTL.
func (l *MemoryRateLimiter) Allow(_ context.Context, key string, policy RateLimit) error {
	if policy.MaxAttempts <= 0 {
		return nil
	}
	if policy.Window <= 0 {
		return fmt.Errorf("invalid rate limit policy for %q: window must be positive", key)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets.Get(key)
	if !ok {
		every := policy.Window / time.Duration(policy.MaxAttempts)
		b = &memoryLimit{limiter: rate.NewLimiter(rate.Every(every), policy.MaxAttempts)}
	}
	// Re-adding refreshes the entry's TTL.
	defer l.buckets.Add(key, b)

	if now.Before(b.lockedUntil) {
		return ErrRateLimitExceeded
	}
	if !b.limiter.AllowN(now, 1) {
		b.lockedUntil = now.Add(policy.LockoutTTL)
		return ErrRateLimitExceeded
	}
	return nil
}
