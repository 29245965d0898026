package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/agentforge/agentforge/pkg/errors"
	"github.com/agentforge/agentforge/pkg/logging"
)

// BackoffStrategy selects how the delay between attempts grows
type BackoffStrategy string

const (
	// BackoffImmediate retries without delay
	BackoffImmediate BackoffStrategy = "immediate"
	// BackoffFixedDelay waits BaseDelay between every attempt
	BackoffFixedDelay BackoffStrategy = "fixed_delay"
	// BackoffLinear waits BaseDelay multiplied by the attempt index
	BackoffLinear BackoffStrategy = "linear_backoff"
	// BackoffExponential waits BaseDelay times Multiplier^(attempt-1)
	BackoffExponential BackoffStrategy = "exponential_backoff"
)

// RetryPolicy holds configuration for retry logic. Immutable once constructed.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts; 1 means no retry
	MaxAttempts int
	// Strategy selects the backoff curve
	Strategy BackoffStrategy
	// BaseDelay is the base delay between attempts
	BaseDelay time.Duration
	// MaxDelay caps the computed delay
	MaxDelay time.Duration
	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64
	// Jitter perturbs the delay by up to ±10% to avoid thundering herd
	Jitter bool
	// RetryableErrors determines if an error is retryable
	RetryableErrors func(error) bool
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryPolicy returns a default retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		Strategy:          BackoffExponential,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
		RetryableErrors:   errors.IsRetryable,
	}
}

// RetryExecutor re-invokes a fallible operation according to a RetryPolicy
type RetryExecutor struct {
	policy RetryPolicy
	logger *logging.Logger
}

// NewRetryExecutor creates a new retry executor with the given policy
func NewRetryExecutor(policy RetryPolicy) *RetryExecutor {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.Strategy == "" {
		policy.Strategy = BackoffExponential
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 100 * time.Millisecond
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	if policy.BackoffMultiplier <= 0 {
		policy.BackoffMultiplier = 2.0
	}
	if policy.RetryableErrors == nil {
		policy.RetryableErrors = errors.IsRetryable
	}

	return &RetryExecutor{
		policy: policy,
		logger: logging.GetLogger(),
	}
}

// Execute executes the given operation with retry logic. Context cancellation
// aborts the inter-attempt sleep and returns ctx.Err().
func (r *RetryExecutor) Execute(ctx context.Context, operation func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := operation(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("Operation succeeded after retry",
					"attempt", attempt,
					"max_attempts", r.policy.MaxAttempts,
				)
			}
			return nil
		}

		lastErr = err

		if !r.policy.RetryableErrors(err) {
			r.logger.Debug("Error is not retryable, stopping",
				"error", err.Error(),
				"attempt", attempt,
			)
			return err
		}

		if attempt == r.policy.MaxAttempts {
			break
		}

		delay := r.delayFor(attempt)

		r.logger.Debug("Operation failed, retrying",
			"error", err.Error(),
			"attempt", attempt,
			"max_attempts", r.policy.MaxAttempts,
			"delay", delay,
		)

		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	r.logger.Error("Operation failed after all retry attempts",
		"error", lastErr.Error(),
		"attempts", r.policy.MaxAttempts,
	)

	return errors.NewRetryExhaustedError(r.policy.MaxAttempts, lastErr)
}

// ExecuteWithResult executes the given operation with retry logic and returns
// a result
func (r *RetryExecutor) ExecuteWithResult(ctx context.Context, operation func(context.Context) (interface{}, error)) (interface{}, error) {
	var result interface{}
	err := r.Execute(ctx, func(ctx context.Context) error {
		var err error
		result, err = operation(ctx)
		return err
	})
	return result, err
}

// delayFor computes the sleep before the attempt following attempt (1-based)
func (r *RetryExecutor) delayFor(attempt int) time.Duration {
	var delay float64

	switch r.policy.Strategy {
	case BackoffImmediate:
		return 0
	case BackoffFixedDelay:
		delay = float64(r.policy.BaseDelay)
	case BackoffLinear:
		delay = float64(r.policy.BaseDelay) * float64(attempt)
	case BackoffExponential:
		delay = float64(r.policy.BaseDelay) * math.Pow(r.policy.BackoffMultiplier, float64(attempt-1))
	default:
		delay = float64(r.policy.BaseDelay)
	}

	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}

	if r.policy.Jitter {
		// ±10% uniform
		delay += (rand.Float64()*2 - 1) * 0.1 * delay
		if delay < 0 {
			delay = 0
		}
	}

	return time.Duration(delay)
}

// RetryWithPolicy is a convenience function to execute an operation with retry
func RetryWithPolicy(ctx context.Context, policy RetryPolicy, operation func(context.Context) error) error {
	return NewRetryExecutor(policy).Execute(ctx, operation)
}

// Retry is a convenience function to execute an operation with the default
// retry policy
func Retry(ctx context.Context, operation func(context.Context) error) error {
	return RetryWithPolicy(ctx, DefaultRetryPolicy(), operation)
}

// GuardedOperation wraps an operation with both circuit breaker and retry
// logic. The breaker sits inside the retry loop so a circuit-open rejection is
// surfaced immediately rather than retried.
type GuardedOperation struct {
	circuitBreaker *CircuitBreaker
	retrier        *RetryExecutor
	logger         *logging.Logger
}

// NewGuardedOperation creates a new guarded operation with circuit breaker and
// retry logic
func NewGuardedOperation(name string, cbConfig CircuitBreakerConfig, policy RetryPolicy) *GuardedOperation {
	if cbConfig.Name == "" {
		cbConfig.Name = name
	}

	return &GuardedOperation{
		circuitBreaker: NewCircuitBreaker(cbConfig),
		retrier:        NewRetryExecutor(policy),
		logger:         logging.GetLogger(),
	}
}

// Execute executes an operation with both circuit breaker and retry logic
func (g *GuardedOperation) Execute(ctx context.Context, operation func(context.Context) (interface{}, error)) (interface{}, error) {
	return g.retrier.ExecuteWithResult(ctx, func(ctx context.Context) (interface{}, error) {
		return g.circuitBreaker.Execute(ctx, operation)
	})
}

// ExecuteVoid executes an operation that doesn't return a result
func (g *GuardedOperation) ExecuteVoid(ctx context.Context, operation func(context.Context) error) error {
	_, err := g.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, operation(ctx)
	})
	return err
}

// State returns the current state of the circuit breaker
func (g *GuardedOperation) State() CircuitState {
	return g.circuitBreaker.State()
}

// Counts returns the current counters of the circuit breaker
func (g *GuardedOperation) Counts() Counts {
	return g.circuitBreaker.Counts()
}

// Breaker exposes the underlying circuit breaker for administrative reset
func (g *GuardedOperation) Breaker() *CircuitBreaker {
	return g.circuitBreaker
}
