package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/mailflow/internal/domain"
)

// RedisLimiter shares one outbound token bucket per provider across
// processes. The bucket lives in Redis and the check-and-take is a single
// Lua script so concurrent workers never race between read and decrement.
type RedisLimiter struct {
	client *redis.Client
	script *redis.Script
}

// tokenBucketScript refills the bucket from elapsed time and takes one
// token if available. Returns {1} on grant or {0, waitMillis} on denial.
const tokenBucketScript = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local raw = redis.call('GET', key)
local tokens = burst
local last = now
if raw then
    local data = cjson.decode(raw)
    tokens = data.tokens
    last = data.last
end

local elapsed = (now - last) / 1000.0
tokens = math.min(burst, tokens + elapsed * rate)

if tokens >= 1 then
    tokens = tokens - 1
    redis.call('SET', key, cjson.encode({tokens=tokens, last=now}), 'EX', 120)
    return {1, 0}
end

redis.call('SET', key, cjson.encode({tokens=tokens, last=now}), 'EX', 120)
local waitMillis = math.ceil((1 - tokens) / rate * 1000)
return {0, waitMillis}
`

// NewRedisLimiter creates a limiter with the bucket script pre-compiled.
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

// NewRedisLimiterFromURL connects to Redis and verifies the connection.
func NewRedisLimiterFromURL(redisURL string) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewRedisLimiter(client), nil
}

// Acquire takes one token for the provider, polling the shared bucket until
// a token refills. Bounded by maxWait like the in-process bucket.
func (rl *RedisLimiter) Acquire(ctx context.Context, providerID string, limit domain.RateLimit, maxWait time.Duration) error {
	burst := limit.BurstSize
	if burst < 1 {
		burst = 1
	}
	key := fmt.Sprintf("mailflow:ratelimit:%s", providerID)
	deadline := time.Now().Add(maxWait)

	for {
		res, err := rl.script.Run(ctx, rl.client,
			[]string{key},
			limit.RequestsPerSecond,
			burst,
			time.Now().UnixMilli(),
		).Slice()
		if err != nil {
			return fmt.Errorf("rate limit script: %w", err)
		}

		granted, _ := res[0].(int64)
		if granted == 1 {
			return nil
		}

		waitMillis, _ := res[1].(int64)
		wait := time.Duration(waitMillis) * time.Millisecond
		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		if maxWait > 0 && time.Now().Add(wait).After(deadline) {
			return ErrRateLimitWait
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Close closes the underlying Redis connection.
func (rl *RedisLimiter) Close() error {
	return rl.client.Close()
}
