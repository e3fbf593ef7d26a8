// Package retry runs operations against upstreams with rate control, circuit
// breaking and analyzer-driven retries. It helps handle transient failures
// gracefully while giving up quickly on failures retries cannot fix.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"batch-collector/internal/observability/metrics"
	"batch-collector/internal/resilience/circuitbreaker"
	"batch-collector/internal/resilience/failure"
	"batch-collector/internal/resilience/ratecontrol"
	"batch-collector/internal/resilience/recovery"
)

// ErrDeadLettered matches every DeadLetterError.
var ErrDeadLettered = errors.New("operation dead-lettered")

// DeadLetterError is returned when the policy is exhausted. The operation is
// not retried again until someone triggers it explicitly.
type DeadLetterError struct {
	Key      recovery.Key
	Reason   string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *DeadLetterError) Error() string {
	return fmt.Sprintf("%s dead-lettered after %d attempts (%s): %v", e.Key, e.Attempts, e.Reason, e.Err)
}

// Is reports whether target is ErrDeadLettered.
func (e *DeadLetterError) Is(target error) bool { return target == ErrDeadLettered }

// Unwrap returns the last attempt's error.
func (e *DeadLetterError) Unwrap() error { return e.Err }

// CircuitBreakError is returned when the analyzer advises abandoning the
// operation because its key keeps failing. RetryAfter is the advised cool-down.
type CircuitBreakError struct {
	Key        recovery.Key
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *CircuitBreakError) Error() string {
	return fmt.Sprintf("%s abandoned, retry after %s: %v", e.Key, e.RetryAfter, e.Err)
}

// Unwrap returns the last attempt's error.
func (e *CircuitBreakError) Unwrap() error { return e.Err }

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Outcome labels for retry_attempts_total.
const (
	outcomeSuccess      = "success"
	outcomeRetry        = "retry"
	outcomeFatal        = "fatal"
	outcomeDeadLetter   = "dead_letter"
	outcomeCircuitBreak = "circuit_break"
	outcomeCircuitOpen  = "circuit_open"
)

// Request describes one resilient execution.
type Request struct {
	// Upstream selects the rate controller and circuit breaker. Empty skips both.
	Upstream string

	// Operation is the first attempt's operation
	Operation recovery.Operation

	// Policy overrides recovery.PolicyFor(Operation.Kind()) when MaxAttempts > 0
	Policy recovery.Policy
}

// Result reports what the executor did.
type Result struct {
	// Attempts is the number of times fn was invoked
	Attempts int

	// Operation is the last operation passed to fn, adjustments included
	Operation recovery.Operation
}

// Func is one attempt. op carries the parameters for this attempt.
type Func func(ctx context.Context, op recovery.Operation) error

// Executor wires the rate controllers, circuit breakers and failure analyzer
// around each attempt.
type Executor struct {
	rates    *ratecontrol.Registry
	breakers *circuitbreaker.Registry
	analyzer *recovery.Analyzer
	logger   *slog.Logger
	sleep    Sleeper
}

// Option configures an Executor.
type Option func(*Executor)

// WithSleeper replaces the context-aware timer used between attempts.
func WithSleeper(s Sleeper) Option {
	return func(e *Executor) { e.sleep = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates an executor. rates and breakers may be nil, in which case
// attempts are neither paced nor gated.
func NewExecutor(rates *ratecontrol.Registry, breakers *circuitbreaker.Registry, analyzer *recovery.Analyzer, opts ...Option) *Executor {
	if analyzer == nil {
		analyzer = recovery.NewAnalyzer()
	}
	e := &Executor{
		rates:    rates,
		breakers: breakers,
		analyzer: analyzer,
		logger:   slog.Default(),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Analyzer returns the failure analyzer shared by every execution.
func (e *Executor) Analyzer() *recovery.Analyzer {
	return e.analyzer
}

// Execute runs fn until it succeeds or the analyzer gives up.
//
// Each attempt first checks the upstream's circuit breaker, then waits for a
// token from the upstream's rate controller and runs through the breaker. A
// rejection by an open breaker is returned immediately, without waiting for a
// token or consuming an attempt. Non-retryable errors
// (bad credentials, cancellation) are returned after the first failure.
// Otherwise the analyzer decides: retry after a backoff with an adjusted
// operation, abandon with *CircuitBreakError, or give up with *DeadLetterError.
func (e *Executor) Execute(ctx context.Context, req Request, fn Func) (Result, error) {
	op := req.Operation
	policy := req.Policy
	if policy.MaxAttempts <= 0 {
		policy = recovery.PolicyFor(op.Kind())
	}
	key := recovery.KeyOf(op)
	label := req.Upstream
	if label == "" {
		label = string(op.Kind())
	}

	var rc *ratecontrol.Controller
	var cb *circuitbreaker.CircuitBreaker
	if req.Upstream != "" {
		if e.rates != nil {
			rc = e.rates.Get(req.Upstream)
		}
		if e.breakers != nil {
			cb = e.breakers.Get(req.Upstream)
		}
	}

	res := Result{Operation: op}
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if cb != nil {
			if err := cb.Check(); err != nil {
				metrics.RecordRetryAttempt(label, outcomeCircuitOpen)
				return res, err
			}
		}
		if rc != nil {
			if err := rc.Acquire(ctx); err != nil {
				return res, err
			}
		}

		if attempt == 1 {
			op = op.WithAttempt(1)
		}
		res.Operation = op

		err := e.runAttempt(ctx, cb, op, fn, &res)
		if err == nil {
			if rc != nil {
				rc.OnSuccess()
			}
			e.analyzer.OnSuccess(key)
			metrics.RecordRetryAttempt(label, outcomeSuccess)
			if attempt > 1 {
				e.logger.Info("operation succeeded after retry",
					slog.String("operation", key.String()),
					slog.Int("attempt", attempt))
			}
			return res, nil
		}

		if circuitbreaker.IsOpenError(err) {
			metrics.RecordRetryAttempt(label, outcomeCircuitOpen)
			return res, err
		}

		if rc != nil {
			rc.OnFailure(err)
			if failure.Classify(err) == failure.RateLimited {
				rc.Backoff()
			}
		}

		if ctx.Err() != nil {
			metrics.RecordRetryAttempt(label, outcomeFatal)
			return res, err
		}

		decision := e.analyzer.HandleFailure(op, err, recovery.FailureContext{Attempts: attempt, Policy: policy})

		if !failure.IsRetryable(err) {
			metrics.RecordRetryAttempt(label, outcomeFatal)
			e.logger.Warn("non-retryable error, aborting",
				slog.String("operation", key.String()),
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			return res, err
		}

		switch d := decision.(type) {
		case recovery.Retry:
			metrics.RecordRetryAttempt(label, outcomeRetry)
			e.logger.Warn("operation failed, retrying",
				slog.String("operation", key.String()),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", policy.MaxAttempts),
				slog.Duration("delay", d.Delay),
				slog.Any("error", err))
			if serr := e.sleep(ctx, d.Delay); serr != nil {
				return res, fmt.Errorf("retry aborted: %w", serr)
			}
			op = d.Operation

		case recovery.CircuitBreak:
			metrics.RecordRetryAttempt(label, outcomeCircuitBreak)
			e.logger.Warn("failure pattern threshold reached, abandoning operation",
				slog.String("operation", key.String()),
				slog.Duration("retry_after", d.Delay),
				slog.Any("error", err))
			return res, &CircuitBreakError{Key: key, RetryAfter: d.Delay, Err: err}

		case recovery.DeadLetter:
			metrics.RecordRetryAttempt(label, outcomeDeadLetter)
			e.logger.Error("operation dead-lettered",
				slog.String("operation", key.String()),
				slog.Int("attempts", attempt),
				slog.String("reason", d.Reason),
				slog.Any("error", err))
			return res, &DeadLetterError{Key: key, Reason: d.Reason, Attempts: attempt, Err: err}
		}
	}
}

// attemptTimeout is implemented by operations that carry a per-attempt deadline.
type attemptTimeout interface {
	AttemptTimeout() time.Duration
}

func (e *Executor) runAttempt(ctx context.Context, cb *circuitbreaker.CircuitBreaker, op recovery.Operation, fn Func, res *Result) error {
	call := func() error {
		res.Attempts++
		attemptCtx := ctx
		if t, ok := op.(attemptTimeout); ok && t.AttemptTimeout() > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, t.AttemptTimeout())
			defer cancel()
		}

		err := fn(attemptCtx, op)
		// The attempt's own deadline expired while the caller is still alive
		if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", failure.ErrRequestTimeout, err)
		}
		return err
	}

	if cb == nil {
		return call()
	}
	return cb.Run(call)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
