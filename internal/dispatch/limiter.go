package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ignite/mailflow/internal/domain"
)

// ErrRateLimitWait is returned when a token could not be acquired within the
// provider's bounded wait. The dispatcher treats it as a transient failure
// of that provider.
var ErrRateLimitWait = errors.New("rate limiter: bounded wait exceeded")

// Limiter grants send tokens for a provider. Acquire blocks until a token is
// available, bounded by maxWait; implementations must be safe for concurrent
// use from every job's send goroutines at once.
type Limiter interface {
	Acquire(ctx context.Context, providerID string, rl domain.RateLimit, maxWait time.Duration) error
}

// TokenBucket is an in-process leaky-bucket limiter: tokens refill at
// RequestsPerSecond up to BurstSize, and each send takes one.
type TokenBucket struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewTokenBucket creates an empty in-process limiter. Buckets start full so
// the first burst goes through untouched.
func NewTokenBucket() *TokenBucket {
	return &TokenBucket{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Acquire takes one token for the provider, waiting for refill when the
// bucket is empty. Returns ErrRateLimitWait if the wait would exceed
// maxWait, or the context error on cancellation.
func (tb *TokenBucket) Acquire(ctx context.Context, providerID string, rl domain.RateLimit, maxWait time.Duration) error {
	deadline := tb.now().Add(maxWait)
	for {
		wait, ok := tb.take(providerID, rl)
		if ok {
			return nil
		}
		if maxWait > 0 && tb.now().Add(wait).After(deadline) {
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

// take attempts a non-blocking token grab. On failure it returns how long
// until one token refills.
func (tb *TokenBucket) take(providerID string, rl domain.RateLimit) (time.Duration, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	burst := float64(rl.BurstSize)
	if burst < 1 {
		burst = 1
	}

	b, ok := tb.buckets[providerID]
	now := tb.now()
	if !ok {
		b = &bucket{tokens: burst, last: now}
		tb.buckets[providerID] = b
	}

	elapsed := now.Sub(b.last).Seconds()
	b.tokens += elapsed * rl.RequestsPerSecond
	if b.tokens > burst {
		b.tokens = burst
	}
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return 0, true
	}

	deficit := 1 - b.tokens
	wait := time.Duration(deficit / rl.RequestsPerSecond * float64(time.Second))
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait, false
}
