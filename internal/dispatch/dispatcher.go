package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/pkg/logger"
	"github.com/ignite/mailflow/internal/provider"
)

var (
	// ErrNoProviders is returned when no enabled provider is registered or
	// all of them are cooling down.
	ErrNoProviders = errors.New("no providers available")

	// ErrNoTransport is returned when a config exists but no transport was
	// registered for it.
	ErrNoTransport = errors.New("no transport registered for provider")
)

// Dispatcher routes one message through the enabled providers in priority
// order. It never panics and never returns nil: total failure comes back as
// an unsuccessful SendResult carrying the last error, because one
// recipient's failure must not abort a batch.
type Dispatcher struct {
	registry *provider.Registry
	limiter  Limiter

	mu         sync.RWMutex
	transports map[string]provider.Transport
	coolingOff map[string]time.Time
}

// NewDispatcher creates a dispatcher over the given registry and limiter.
func NewDispatcher(registry *provider.Registry, limiter Limiter) *Dispatcher {
	return &Dispatcher{
		registry:   registry,
		limiter:    limiter,
		transports: make(map[string]provider.Transport),
		coolingOff: make(map[string]time.Time),
	}
}

// RegisterTransport binds a transport to a provider ID.
func (d *Dispatcher) RegisterTransport(providerID string, t provider.Transport) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.transports[providerID] = t
}

// Send delivers msg through the first provider that accepts it. Per
// provider: acquire a rate-limit token (bounded by the policy's max delay),
// send, retry transient failures per the retry policy, then fail over. A
// provider that exhausts its retries cools down for RetryAfterExhaustion and
// is skipped for subsequent dispatches meanwhile.
func (d *Dispatcher) Send(ctx context.Context, msg *provider.Message) *provider.SendResult {
	configs := d.registry.EnabledConfigs()
	if len(configs) == 0 {
		return &provider.SendResult{Success: false, Err: ErrNoProviders}
	}

	var lastErr error
	lastProvider := ""
	attempted := false

	for _, cfg := range configs {
		if d.coolingDown(cfg.ID) {
			continue
		}
		transport := d.transport(cfg.ID)
		if transport == nil {
			lastErr = ErrNoTransport
			continue
		}

		attempted = true
		lastProvider = cfg.ID
		res, err := d.sendWithRetries(ctx, cfg, transport, msg)
		if res != nil && res.Success {
			return res
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if provider.IsTransient(err) {
			d.startCooldown(cfg)
		}
	}

	if !attempted && lastErr == nil {
		lastErr = ErrNoProviders
	}
	return &provider.SendResult{Success: false, ProviderID: lastProvider, Err: lastErr}
}

// sendWithRetries drives one provider until success, a permanent failure,
// or retry exhaustion. Returns the last failure error in the latter cases.
func (d *Dispatcher) sendWithRetries(ctx context.Context, cfg domain.ProviderConfig, t provider.Transport, msg *provider.Message) (*provider.SendResult, error) {
	rp := cfg.RetryPolicy
	var lastErr error

	for attempt := 0; attempt <= rp.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, rp.Delay(attempt-1)); err != nil {
				return nil, lastErr
			}
		}

		if err := d.limiter.Acquire(ctx, cfg.ID, cfg.RateLimit, rp.MaxDelay); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// A bounded-wait timeout spends one attempt like any other
			// transient failure.
			lastErr = provider.Transient(err)
			continue
		}

		res, err := t.Send(ctx, msg)
		if err == nil && res != nil && res.Success {
			res.ProviderID = cfg.ID
			return res, nil
		}

		if err == nil && res != nil {
			err = res.Err
		}
		lastErr = err
		if !provider.IsTransient(err) {
			// Permanent rejection: retrying here is pointless, but the
			// next provider may still accept the message.
			return nil, lastErr
		}
	}

	return nil, lastErr
}

// coolingDown reports whether the provider is inside its post-exhaustion
// cool-down window.
func (d *Dispatcher) coolingDown(providerID string) bool {
	d.mu.RLock()
	until, ok := d.coolingOff[providerID]
	d.mu.RUnlock()
	return ok && time.Now().Before(until)
}

func (d *Dispatcher) startCooldown(cfg domain.ProviderConfig) {
	if cfg.RetryPolicy.RetryAfterExhaustion <= 0 {
		return
	}
	d.mu.Lock()
	d.coolingOff[cfg.ID] = time.Now().Add(cfg.RetryPolicy.RetryAfterExhaustion)
	d.mu.Unlock()
	logger.Warn("provider cooling down after retry exhaustion",
		"provider_id", cfg.ID,
		"cooldown", cfg.RetryPolicy.RetryAfterExhaustion.String())
}

func (d *Dispatcher) transport(providerID string) provider.Transport {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.transports[providerID]
}

func sleepCtx(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return nil
	}
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
