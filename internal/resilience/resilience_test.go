package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindMalformed, KindOf(WithKind(eris.New("bad payload"), KindMalformed)))
	assert.Equal(t, KindFatal, KindOf(eris.Wrap(WithKind(eris.New("no creds"), KindFatal), "startup")))
	assert.Equal(t, Kind(""), KindOf(eris.New("something else")))
	assert.Equal(t, KindTransient, KindOf(eris.New("read tcp: connection reset by peer")))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(WithKind(eris.New("503"), KindTransient)))
	assert.True(t, IsTransient(WithKind(eris.New("429"), KindRateLimit)))
	assert.False(t, IsTransient(WithKind(eris.New("bad"), KindMalformed)))
	assert.False(t, IsTransient(nil))
}

func TestKindForHTTPStatus(t *testing.T) {
	assert.Equal(t, KindRateLimit, KindForHTTPStatus(429))
	assert.Equal(t, KindTransient, KindForHTTPStatus(503))
	assert.Equal(t, KindTransient, KindForHTTPStatus(408))
	assert.Equal(t, KindMalformed, KindForHTTPStatus(400))
	assert.Equal(t, Kind(""), KindForHTTPStatus(200))
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastRetry(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return WithKind(eris.New("flaky"), KindTransient)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_MalformedNotRetried(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastRetry(), func(ctx context.Context) error {
		attempts++
		return WithKind(eris.New("bad shape"), KindMalformed)
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, KindMalformed, KindOf(err))
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastRetry(), func(ctx context.Context) error {
		attempts++
		return WithKind(eris.New("always down"), KindTransient)
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoVal_RateLimitDoesNotConsumeAttempts(t *testing.T) {
	cfg := fastRetry()
	cfg.RateLimitWait = func() time.Duration { return time.Millisecond }

	attempts := 0
	val, err := DoVal(context.Background(), cfg, func(ctx context.Context) (int, error) {
		attempts++
		if attempts <= 5 { // more rate-limit hits than MaxAttempts
			return 0, WithKind(eris.New("slow down"), KindRateLimit)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, 6, attempts)
}

func TestDo_ContextCancellationStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Do(ctx, fastRetry(), func(ctx context.Context) error {
		attempts++
		cancel()
		return WithKind(eris.New("flaky"), KindTransient)
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	})

	boom := func(ctx context.Context) error { return eris.New("boom") }
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, boom))
	require.Error(t, cb.Execute(ctx, boom))
	assert.Equal(t, CircuitOpen, cb.State())

	err := cb.Execute(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
	})
	cb.nowFunc = func() time.Time { return now }

	ctx := context.Background()
	require.Error(t, cb.Execute(ctx, func(ctx context.Context) error { return eris.New("boom") }))
	assert.Equal(t, CircuitOpen, cb.State())

	// After the reset timeout a probe is allowed; success closes the circuit.
	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Execute(ctx, func(ctx context.Context) error { return nil }))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	_ = cb.Execute(context.Background(), func(ctx context.Context) error { return eris.New("boom") })
	assert.Equal(t, CircuitOpen, cb.State())

	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
}
