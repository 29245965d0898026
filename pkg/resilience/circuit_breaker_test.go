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

func TestCircuitBreaker_DefaultBehavior(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 3,
		RecoveryTimeout:  time.Second,
		SuccessThreshold: 2,
		HalfOpenMaxCalls: 2,
	})

	// Initially closed
	assert.Equal(t, StateClosed, cb.State())

	// Successful calls should keep it closed
	for i := 0; i < 5; i++ {
		result, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return "success", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "success", result)
		assert.Equal(t, StateClosed, cb.State())
	}
}

func TestCircuitBreaker_OpensAtFailureThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 3,
		RecoveryTimeout:  time.Second,
		SuccessThreshold: 2,
		HalfOpenMaxCalls: 2,
	})

	// One short of the threshold stays closed
	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.CanExecute())

	// Threshold failure opens the circuit
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.CanExecute())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 3,
		RecoveryTimeout:  time.Second,
		SuccessThreshold: 2,
		HalfOpenMaxCalls: 2,
	})

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	// Counter restarted, two more failures are not enough
	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_RejectsWhileOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 2,
		RecoveryTimeout:  time.Second,
		SuccessThreshold: 1,
		HalfOpenMaxCalls: 1,
	})

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())

	executed := false
	_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		executed = true
		return "should not execute", nil
	})
	require.Error(t, err)
	assert.False(t, executed)
	assert.True(t, IsCircuitOpenError(err))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeCircuitOpen))
}

func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 2,
		RecoveryTimeout:  50 * time.Millisecond,
		SuccessThreshold: 2,
		HalfOpenMaxCalls: 3,
	})

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.CanExecute())

	// After the recovery timeout the next CanExecute admits a probe call
	time.Sleep(60 * time.Millisecond)
	assert.True(t, cb.CanExecute())
	assert.Equal(t, StateHalfOpen, cb.State())

	// SuccessThreshold successes close the circuit
	cb.RecordSuccess()
	assert.Equal(t, StateHalfOpen, cb.State())
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, Counts{}, cb.Counts())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 2,
		RecoveryTimeout:  50 * time.Millisecond,
		SuccessThreshold: 2,
		HalfOpenMaxCalls: 3,
	})

	cb.RecordFailure()
	cb.RecordFailure()
	time.Sleep(60 * time.Millisecond)
	require.True(t, cb.CanExecute())
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.CanExecute())
}

func TestCircuitBreaker_HalfOpenBoundsCalls(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
		SuccessThreshold: 5,
		HalfOpenMaxCalls: 2,
	})

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	// The transition itself admits the first probe
	assert.True(t, cb.CanExecute())
	assert.True(t, cb.CanExecute())
	assert.False(t, cb.CanExecute())
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	type transition struct {
		from, to CircuitState
	}
	var transitions []transition

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
		SuccessThreshold: 1,
		HalfOpenMaxCalls: 1,
		OnStateChange: func(name string, from, to CircuitState) {
			assert.Equal(t, "test-cb", name)
			transitions = append(transitions, transition{from, to})
		},
	})

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	require.True(t, cb.CanExecute())
	cb.RecordSuccess()

	require.Len(t, transitions, 3)
	assert.Equal(t, transition{StateClosed, StateOpen}, transitions[0])
	assert.Equal(t, transition{StateOpen, StateHalfOpen}, transitions[1])
	assert.Equal(t, transition{StateHalfOpen, StateClosed}, transitions[2])
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 1,
		RecoveryTimeout:  time.Hour,
		SuccessThreshold: 1,
		HalfOpenMaxCalls: 1,
	})

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.CanExecute())
	assert.Equal(t, Counts{}, cb.Counts())
}

func TestCircuitBreaker_ExecuteRecordsOutcome(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test-cb",
		FailureThreshold: 2,
		RecoveryTimeout:  time.Second,
		SuccessThreshold: 1,
		HalfOpenMaxCalls: 1,
	})

	_, err := cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 1, cb.Counts().FailureCount)

	_, err = cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())
}
