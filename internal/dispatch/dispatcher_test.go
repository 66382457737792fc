package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/provider"
)

// stubTransport scripts per-call outcomes for one provider.
type stubTransport struct {
	mu      sync.Mutex
	id      string
	calls   int
	outcome func(call int) error // nil means success
}

func (s *stubTransport) Send(_ context.Context, _ *provider.Message) (*provider.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := s.outcome(s.calls); err != nil {
		return &provider.SendResult{Success: false, ProviderID: s.id, Err: err}, nil
	}
	return &provider.SendResult{Success: true, ProviderID: s.id, MessageID: "msg-1", SentAt: time.Now()}, nil
}

func (s *stubTransport) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func alwaysTransient(_ int) error { return provider.Transient(errors.New("throttled")) }
func alwaysOK(_ int) error        { return nil }

func testConfig(id string, priority, maxRetries int) domain.ProviderConfig {
	return domain.ProviderConfig{
		ID:       id,
		Name:     "Test",
		Priority: priority,
		Enabled:  true,
		RateLimit: domain.RateLimit{
			RequestsPerSecond: 1000,
			BurstSize:         1000,
		},
		RetryPolicy: domain.RetryPolicy{
			MaxRetries:           maxRetries,
			InitialDelay:         time.Millisecond,
			MaxDelay:             10 * time.Millisecond,
			BackoffMultiplier:    2,
			Backoff:              domain.BackoffExponential,
			RetryAfterExhaustion: time.Minute,
		},
	}
}

func newTestDispatcher(t *testing.T, configs ...domain.ProviderConfig) *Dispatcher {
	t.Helper()
	reg := provider.NewRegistry(configs)
	require.Len(t, reg.LoadConfigs(), len(configs))
	return NewDispatcher(reg, NewTokenBucket())
}

func TestFailoverToNextPriorityProvider(t *testing.T) {
	d := newTestDispatcher(t, testConfig("p1", 1, 2), testConfig("p2", 2, 2))

	p1 := &stubTransport{id: "p1", outcome: alwaysTransient}
	p2 := &stubTransport{id: "p2", outcome: alwaysOK}
	d.RegisterTransport("p1", p1)
	d.RegisterTransport("p2", p2)

	res := d.Send(context.Background(), &provider.Message{To: "x@example.com"})
	require.True(t, res.Success)
	assert.Equal(t, "p2", res.ProviderID, "must land on the backup after p1 exhausts")
	assert.Equal(t, 3, p1.callCount(), "initial attempt plus two retries on p1")
	assert.Equal(t, 1, p2.callCount())
}

func TestPermanentErrorSkipsRetries(t *testing.T) {
	d := newTestDispatcher(t, testConfig("p1", 1, 5), testConfig("p2", 2, 5))

	perm := errors.New("invalid recipient")
	p1 := &stubTransport{id: "p1", outcome: func(int) error { return perm }}
	p2 := &stubTransport{id: "p2", outcome: alwaysOK}
	d.RegisterTransport("p1", p1)
	d.RegisterTransport("p2", p2)

	res := d.Send(context.Background(), &provider.Message{To: "x@example.com"})
	require.True(t, res.Success)
	assert.Equal(t, "p2", res.ProviderID)
	assert.Equal(t, 1, p1.callCount(), "permanent failure must not be retried on the same provider")
}

func TestAllProvidersExhaustedReturnsLastError(t *testing.T) {
	d := newTestDispatcher(t, testConfig("p1", 1, 1), testConfig("p2", 2, 1))

	p1 := &stubTransport{id: "p1", outcome: alwaysTransient}
	p2 := &stubTransport{id: "p2", outcome: alwaysTransient}
	d.RegisterTransport("p1", p1)
	d.RegisterTransport("p2", p2)

	res := d.Send(context.Background(), &provider.Message{To: "x@example.com"})
	require.False(t, res.Success)
	require.Error(t, res.Err)
	assert.True(t, provider.IsTransient(res.Err))
	assert.Equal(t, "p2", res.ProviderID, "result names the last provider tried")
}

func TestExhaustedProviderCoolsDown(t *testing.T) {
	d := newTestDispatcher(t, testConfig("p1", 1, 1), testConfig("p2", 2, 1))

	p1 := &stubTransport{id: "p1", outcome: alwaysTransient}
	p2 := &stubTransport{id: "p2", outcome: alwaysOK}
	d.RegisterTransport("p1", p1)
	d.RegisterTransport("p2", p2)

	// First send exhausts p1 and succeeds on p2.
	res := d.Send(context.Background(), &provider.Message{To: "x@example.com"})
	require.True(t, res.Success)
	callsAfterFirst := p1.callCount()

	// p1 is cooling down: the second send must not touch it.
	res = d.Send(context.Background(), &provider.Message{To: "y@example.com"})
	require.True(t, res.Success)
	assert.Equal(t, "p2", res.ProviderID)
	assert.Equal(t, callsAfterFirst, p1.callCount(), "cooling-down provider must be skipped")
}

func TestNoProvidersConfigured(t *testing.T) {
	d := newTestDispatcher(t)
	res := d.Send(context.Background(), &provider.Message{To: "x@example.com"})
	require.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrNoProviders)
}

func TestMissingTransportReported(t *testing.T) {
	d := newTestDispatcher(t, testConfig("p1", 1, 0))
	res := d.Send(context.Background(), &provider.Message{To: "x@example.com"})
	require.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrNoTransport)
}

func TestFixedBackoffRetriesQuickly(t *testing.T) {
	cfg := testConfig("p1", 1, 3)
	cfg.RetryPolicy.Backoff = domain.BackoffFixed
	cfg.RetryPolicy.BackoffMultiplier = 1
	cfg.RetryPolicy.InitialDelay = time.Millisecond
	d := newTestDispatcher(t, cfg)

	// Succeed on the third attempt.
	p1 := &stubTransport{id: "p1", outcome: func(call int) error {
		if call < 3 {
			return provider.Transient(errors.New("throttled"))
		}
		return nil
	}}
	d.RegisterTransport("p1", p1)

	res := d.Send(context.Background(), &provider.Message{To: "x@example.com"})
	require.True(t, res.Success)
	assert.Equal(t, 3, p1.callCount())
}

func TestCancelledContextStopsDispatch(t *testing.T) {
	d := newTestDispatcher(t, testConfig("p1", 1, 50))
	p1 := &stubTransport{id: "p1", outcome: alwaysTransient}
	d.RegisterTransport("p1", p1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := d.Send(ctx, &provider.Message{To: "x@example.com"})
	require.False(t, res.Success)
	assert.LessOrEqual(t, p1.callCount(), 1)
}
