package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/agentforge/agentforge/pkg/errors"
)

func TestRetryExecutor_SucceedsFirstAttempt(t *testing.T) {
	r := NewRetryExecutor(RetryPolicy{
		MaxAttempts: 3,
		Strategy:    BackoffImmediate,
	})

	calls := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryExecutor_RetriesUntilSuccess(t *testing.T) {
	r := NewRetryExecutor(RetryPolicy{
		MaxAttempts: 5,
		Strategy:    BackoffImmediate,
	})

	calls := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExecutor_ExhaustionWrapsLastError(t *testing.T) {
	r := NewRetryExecutor(RetryPolicy{
		MaxAttempts: 3,
		Strategy:    BackoffImmediate,
	})

	cause := errors.New("persistent")
	calls := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return cause
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeRetryExhausted))
	assert.ErrorIs(t, err, cause)
}

func TestRetryExecutor_SingleAttemptNeverRetries(t *testing.T) {
	r := NewRetryExecutor(RetryPolicy{
		MaxAttempts: 1,
		Strategy:    BackoffImmediate,
	})

	calls := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryExecutor_NonRetryableStopsImmediately(t *testing.T) {
	r := NewRetryExecutor(DefaultRetryPolicy())

	calls := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return apperrors.NewValidationError("bad input")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestRetryExecutor_CircuitOpenNotRetried(t *testing.T) {
	r := NewRetryExecutor(DefaultRetryPolicy())

	calls := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return apperrors.NewCircuitOpenError("dep")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsCircuitOpenError(err))
}

func TestRetryExecutor_ExponentialBackoffTiming(t *testing.T) {
	r := NewRetryExecutor(RetryPolicy{
		MaxAttempts:       3,
		Strategy:          BackoffExponential,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            false,
	})

	calls := 0
	start := time.Now()
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	// 100ms + 200ms between the three attempts
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, 600*time.Millisecond)
}

func TestRetryExecutor_DelayCurves(t *testing.T) {
	base := 100 * time.Millisecond

	tests := []struct {
		name     string
		strategy BackoffStrategy
		attempt  int
		want     time.Duration
	}{
		{"immediate", BackoffImmediate, 1, 0},
		{"fixed first", BackoffFixedDelay, 1, base},
		{"fixed third", BackoffFixedDelay, 3, base},
		{"linear first", BackoffLinear, 1, base},
		{"linear third", BackoffLinear, 3, 300 * time.Millisecond},
		{"exponential first", BackoffExponential, 1, base},
		{"exponential third", BackoffExponential, 3, 400 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRetryExecutor(RetryPolicy{
				MaxAttempts:       5,
				Strategy:          tt.strategy,
				BaseDelay:         base,
				MaxDelay:          time.Minute,
				BackoffMultiplier: 2.0,
				Jitter:            false,
			})
			assert.Equal(t, tt.want, r.delayFor(tt.attempt))
		})
	}
}

func TestRetryExecutor_DelayClampedToMax(t *testing.T) {
	r := NewRetryExecutor(RetryPolicy{
		MaxAttempts:       10,
		Strategy:          BackoffExponential,
		BaseDelay:         time.Second,
		MaxDelay:          2 * time.Second,
		BackoffMultiplier: 10.0,
		Jitter:            false,
	})

	assert.Equal(t, 2*time.Second, r.delayFor(5))
}

func TestRetryExecutor_JitterStaysWithinBounds(t *testing.T) {
	r := NewRetryExecutor(RetryPolicy{
		MaxAttempts:       3,
		Strategy:          BackoffFixedDelay,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	})

	for i := 0; i < 100; i++ {
		d := r.delayFor(1)
		assert.GreaterOrEqual(t, d, 90*time.Millisecond)
		assert.LessOrEqual(t, d, 110*time.Millisecond)
	}
}

func TestRetryExecutor_ContextCancellationAbortsSleep(t *testing.T) {
	r := NewRetryExecutor(RetryPolicy{
		MaxAttempts: 3,
		Strategy:    BackoffFixedDelay,
		BaseDelay:   time.Hour,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := r.Execute(ctx, func(ctx context.Context) error {
		return errors.New("transient")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRetryExecutor_ExecuteWithResult(t *testing.T) {
	r := NewRetryExecutor(RetryPolicy{
		MaxAttempts: 3,
		Strategy:    BackoffImmediate,
	})

	calls := 0
	result, err := r.ExecuteWithResult(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		if calls < 2 {
			return nil, errors.New("transient")
		}
		return "done", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, 2, calls)
}

func TestRetryExecutor_OnRetryCallback(t *testing.T) {
	var attempts []int
	r := NewRetryExecutor(RetryPolicy{
		MaxAttempts: 3,
		Strategy:    BackoffImmediate,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			attempts = append(attempts, attempt)
		},
	})

	r.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("transient")
	})

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestGuardedOperation_OpenCircuitStopsRetries(t *testing.T) {
	g := NewGuardedOperation("guarded-test",
		CircuitBreakerConfig{
			FailureThreshold: 1,
			RecoveryTimeout:  time.Hour,
			SuccessThreshold: 1,
			HalfOpenMaxCalls: 1,
		},
		RetryPolicy{
			MaxAttempts: 5,
			Strategy:    BackoffImmediate,
		},
	)

	calls := 0
	_, err := g.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, apperrors.NewExternalError("dep", "down")
	})

	// First failure opens the breaker; the retry loop then sees the
	// circuit-open rejection and stops instead of hammering the dependency.
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateOpen, g.State())
}

func TestGuardedOperation_SuccessPassesThrough(t *testing.T) {
	g := NewGuardedOperation("guarded-test",
		DefaultCircuitBreakerConfig("guarded-test"),
		RetryPolicy{MaxAttempts: 3, Strategy: BackoffImmediate},
	)

	result, err := g.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, StateClosed, g.State())
}
