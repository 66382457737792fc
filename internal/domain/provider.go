package domain

import (
	"fmt"
	"time"
)

// BackoffMode selects how retry delays grow between attempts.
type BackoffMode string

const (
	// BackoffFixed retries after the same delay every time. Used for
	// providers with strict per-second quotas where exponential growth
	// would waste the sending window.
	BackoffFixed BackoffMode = "fixed"

	// BackoffExponential multiplies the delay after each failed attempt,
	// capped at MaxDelay.
	BackoffExponential BackoffMode = "exponential"
)

// RateLimit bounds how fast messages may be pushed through a provider.
type RateLimit struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	BurstSize         int     `json:"burst_size" yaml:"burst_size"`
}

// RetryPolicy controls per-provider retry behavior for transient failures.
type RetryPolicy struct {
	MaxRetries           int           `json:"max_retries" yaml:"max_retries"`
	InitialDelay         time.Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay             time.Duration `json:"max_delay" yaml:"max_delay"`
	BackoffMultiplier    float64       `json:"backoff_multiplier" yaml:"backoff_multiplier"`
	Backoff              BackoffMode   `json:"backoff" yaml:"backoff"`
	RetryAfterExhaustion time.Duration `json:"retry_after_exhaustion" yaml:"retry_after_exhaustion"`
}

// Delay returns the backoff delay before the given retry attempt
// (attempt 0 is the first retry).
func (rp RetryPolicy) Delay(attempt int) time.Duration {
	if rp.Backoff == BackoffFixed {
		return rp.InitialDelay
	}
	d := rp.InitialDelay
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * rp.BackoffMultiplier)
		if d >= rp.MaxDelay {
			return rp.MaxDelay
		}
	}
	if d > rp.MaxDelay {
		return rp.MaxDelay
	}
	return d
}

// ProviderConfig describes one outbound email provider. Configs live for the
// lifetime of the process: they are built from the environment at startup and
// mutated only through the registry, never persisted.
type ProviderConfig struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Priority    int               `json:"priority" yaml:"priority"`
	Enabled     bool              `json:"enabled" yaml:"enabled"`
	RateLimit   RateLimit         `json:"rate_limit" yaml:"rate_limit"`
	RetryPolicy RetryPolicy       `json:"retry_policy" yaml:"retry_policy"`
	Credentials map[string]string `json:"-" yaml:"credentials"`
}

// Validate reports why a provider config is unusable, or nil if it is fine.
// Rejected configs are excluded at load time, never fatal.
func (c ProviderConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("provider config missing id")
	}
	if c.Name == "" {
		return fmt.Errorf("provider %s: missing name", c.ID)
	}
	if c.Priority < 0 {
		return fmt.Errorf("provider %s: priority must be >= 0, got %d", c.ID, c.Priority)
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("provider %s: requests_per_second must be > 0, got %v", c.ID, c.RateLimit.RequestsPerSecond)
	}
	rp := c.RetryPolicy
	if rp.MaxRetries < 0 || rp.InitialDelay < 0 || rp.MaxDelay < 0 || rp.RetryAfterExhaustion < 0 {
		return fmt.Errorf("provider %s: retry policy fields must be >= 0", c.ID)
	}
	if rp.BackoffMultiplier <= 0 {
		return fmt.Errorf("provider %s: backoff_multiplier must be > 0, got %v", c.ID, rp.BackoffMultiplier)
	}
	if rp.Backoff != BackoffFixed && rp.Backoff != BackoffExponential {
		return fmt.Errorf("provider %s: backoff must be %q or %q", c.ID, BackoffFixed, BackoffExponential)
	}
	return nil
}
