package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailflow/internal/domain"
)

func validConfig(id string, priority int) domain.ProviderConfig {
	return domain.ProviderConfig{
		ID:       id,
		Name:     "SES",
		Priority: priority,
		Enabled:  true,
		RateLimit: domain.RateLimit{
			RequestsPerSecond: 10,
			BurstSize:         20,
		},
		RetryPolicy: domain.RetryPolicy{
			MaxRetries:           3,
			InitialDelay:         50 * time.Millisecond,
			MaxDelay:             time.Second,
			BackoffMultiplier:    2,
			Backoff:              domain.BackoffExponential,
			RetryAfterExhaustion: 5 * time.Second,
		},
	}
}

func TestLoadConfigsPartitionsValidAndRejected(t *testing.T) {
	bad := validConfig("bad", 1)
	bad.RateLimit.RequestsPerSecond = 0

	noName := validConfig("unnamed", 2)
	noName.Name = ""

	negPriority := validConfig("neg", 0)
	negPriority.Priority = -1

	r := NewRegistry([]domain.ProviderConfig{
		validConfig("ses-primary", 0),
		bad,
		noName,
		negPriority,
		validConfig("smtp-backup", 5),
	})

	loaded := r.LoadConfigs()
	require.Len(t, loaded, 2)
	assert.Equal(t, "ses-primary", loaded[0].ID)
	assert.Equal(t, "smtp-backup", loaded[1].ID)

	rejected := r.Rejected()
	require.Len(t, rejected, 3)
	ids := []string{rejected[0].Config.ID, rejected[1].Config.ID, rejected[2].Config.ID}
	assert.ElementsMatch(t, []string{"bad", "unnamed", "neg"}, ids)
	for _, rej := range rejected {
		assert.NotEmpty(t, rej.Reason)
	}
}

func TestLoadConfigsIdempotent(t *testing.T) {
	r := NewRegistry([]domain.ProviderConfig{validConfig("p1", 0)})
	first := r.LoadConfigs()
	second := r.LoadConfigs()
	assert.Equal(t, first, second)
	assert.Len(t, second, 1)
}

func TestEnabledConfigsSortedByPriority(t *testing.T) {
	disabled := validConfig("p-disabled", 1)
	disabled.Enabled = false

	r := NewRegistry([]domain.ProviderConfig{
		validConfig("p-low", 9),
		validConfig("p-high", 0),
		disabled,
		validConfig("p-mid", 4),
	})
	r.LoadConfigs()

	enabled := r.EnabledConfigs()
	require.Len(t, enabled, 3)
	assert.Equal(t, "p-high", enabled[0].ID)
	assert.Equal(t, "p-mid", enabled[1].ID)
	assert.Equal(t, "p-low", enabled[2].ID)
}

func TestRuntimeMutation(t *testing.T) {
	r := NewRegistry(nil)
	r.LoadConfigs()

	require.NoError(t, r.AddConfig(validConfig("p1", 0)))
	assert.Error(t, r.AddConfig(validConfig("p1", 1)), "duplicate ID must be rejected")

	updated := validConfig("p1", 3)
	require.NoError(t, r.UpdateConfig(updated))
	got, ok := r.Get("p1")
	require.True(t, ok)
	assert.Equal(t, 3, got.Priority)

	assert.Error(t, r.UpdateConfig(validConfig("ghost", 0)))

	assert.True(t, r.RemoveConfig("p1"))
	assert.False(t, r.RemoveConfig("p1"))
}

func TestAddConfigValidates(t *testing.T) {
	r := NewRegistry(nil)
	bad := validConfig("p1", 0)
	bad.RetryPolicy.BackoffMultiplier = 0
	assert.Error(t, r.AddConfig(bad))
}

func TestRetryPolicyDelay(t *testing.T) {
	exp := domain.RetryPolicy{
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2,
		Backoff:           domain.BackoffExponential,
	}
	assert.Equal(t, 100*time.Millisecond, exp.Delay(0))
	assert.Equal(t, 200*time.Millisecond, exp.Delay(1))
	assert.Equal(t, 400*time.Millisecond, exp.Delay(2))
	assert.Equal(t, time.Second, exp.Delay(10), "capped at max delay")

	fixed := domain.RetryPolicy{
		InitialDelay:      250 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 1,
		Backoff:           domain.BackoffFixed,
	}
	assert.Equal(t, 250*time.Millisecond, fixed.Delay(0))
	assert.Equal(t, 250*time.Millisecond, fixed.Delay(5), "fixed delay never grows")
}
