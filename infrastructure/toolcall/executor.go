// Package toolcall plans and executes tool invocations for a turn: parameter
// resolution, dependency staging, and resilient execution.
package toolcall

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/parley/domain/tool"
)

// Executor provides resilient tool execution with circuit breaker, retry,
// and bulkhead patterns.
type Executor struct {
	bulkhead bulkhead.Bulkhead[tool.Result]
	breaker  circuitbreaker.CircuitBreaker[tool.Result]
	retry    retry.Retry[tool.Result]
	timeout  time.Duration
}

// ExecutorConfig configures the resilient executor.
type ExecutorConfig struct {
	// MaxConcurrent limits concurrent tool executions.
	MaxConcurrent int

	// CircuitBreakerThreshold is the number of failures before opening.
	CircuitBreakerThreshold int

	// CircuitBreakerTimeout is how long the circuit stays open.
	CircuitBreakerTimeout time.Duration

	// RetryMaxAttempts is the maximum number of retry attempts.
	RetryMaxAttempts int

	// RetryInitialDelay is the initial delay between retries.
	RetryInitialDelay time.Duration

	// RetryBackoffMultiplier is the exponential backoff multiplier.
	RetryBackoffMultiplier float64

	// DefaultTimeout is the default execution timeout.
	DefaultTimeout time.Duration
}

// DefaultExecutorConfig returns a configuration with sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxConcurrent:           10,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		RetryMaxAttempts:        3,
		RetryInitialDelay:       100 * time.Millisecond,
		RetryBackoffMultiplier:  2.0,
		DefaultTimeout:          30 * time.Second,
	}
}

// NewExecutor creates a new resilient executor.
func NewExecutor(config ExecutorConfig) *Executor {
	maxConcurrent := config.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	threshold := config.CircuitBreakerThreshold
	if threshold <= 0 {
		threshold = 5
	}
	timeout := config.DefaultTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Executor{
		bulkhead: bulkhead.New[tool.Result](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
		}),
		breaker: circuitbreaker.New[tool.Result](circuitbreaker.Config{
			MaxRequests: uint32(maxConcurrent), // #nosec G115 -- bounds checked above
			Interval:    config.CircuitBreakerTimeout,
			Timeout:     config.CircuitBreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- bounds checked above
			},
		}),
		retry: retry.New[tool.Result](retry.Config{
			MaxAttempts:   config.RetryMaxAttempts,
			InitialDelay:  config.RetryInitialDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    config.RetryBackoffMultiplier,
		}),
		timeout: timeout,
	}
}

// NewDefaultExecutor creates an executor with default configuration.
func NewDefaultExecutor() *Executor {
	return NewExecutor(DefaultExecutorConfig())
}

// Execute runs a tool with resilience patterns applied.
// Composition order: Bulkhead → Timeout → Circuit Breaker → Retry (only for
// tools annotated retryable). Failures never escape as errors: they come
// back classified as tool results per the invocation taxonomy.
func (e *Executor) Execute(ctx context.Context, t tool.Tool, tc tool.Context, args tool.Arguments) tool.Result {
	start := time.Now()

	result, err := e.bulkhead.Execute(ctx, func(ctx context.Context) (tool.Result, error) {
		ctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		return e.breaker.Execute(ctx, func(ctx context.Context) (tool.Result, error) {
			if t.Annotations().Retryable {
				return e.retry.Do(ctx, func(ctx context.Context) (tool.Result, error) {
					return t.Execute(ctx, tc, args)
				})
			}
			return t.Execute(ctx, tc, args)
		})
	})

	if err != nil {
		result = classifyError(t, err)
	}
	result.Duration = time.Since(start)
	return result
}

// classifyError maps an execution error into the invocation taxonomy.
func classifyError(t tool.Tool, err error) tool.Result {
	switch {
	case errors.Is(err, tool.ErrSecurityViolation):
		return tool.NewSecurityViolationResult(err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, tool.ErrExecutionTimeout):
		return tool.NewTimeoutResult(err.Error())
	default:
		return tool.NewErrorResult(err.Error(), t.Annotations().Retryable)
	}
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (e *Executor) CircuitBreakerState() circuitbreaker.State {
	return e.breaker.State()
}
