// Package circuitbreaker isolates failing upstreams.
// It uses the github.com/sony/gobreaker library with consecutive-failure semantics:
// the circuit opens after FailureThreshold failures in a row, lets trial requests through
// after Timeout, and closes again after SuccessThreshold of them succeed.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"batch-collector/internal/observability/metrics"
)

// ErrOpen is matched by every OpenError via errors.Is.
var ErrOpen = errors.New("circuit breaker is open")

// State mirrors the three breaker states.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Config holds the configuration for a circuit breaker.
type Config struct {
	// Name is the circuit breaker name for logging and metrics
	Name string `yaml:"-"`

	// FailureThreshold is the number of consecutive failures that trips the circuit
	FailureThreshold uint32 `yaml:"failure_threshold"`

	// SuccessThreshold is the number of consecutive half-open successes that closes it
	SuccessThreshold uint32 `yaml:"success_threshold"`

	// Timeout is how long the circuit stays open before letting a trial request through
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns a default configuration for upstream circuit breakers.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 3,
		Timeout:          30 * time.Second,
	}
}

// OpenError is returned when a call is rejected without being attempted.
type OpenError struct {
	Name  string
	State State
	cause error
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit %q is %s: call rejected", e.Name, e.State)
}

// Is makes errors.Is(err, ErrOpen) true.
func (e *OpenError) Is(target error) bool {
	return target == ErrOpen
}

// Unwrap returns the underlying gobreaker error.
func (e *OpenError) Unwrap() error {
	return e.cause
}

// IsOpenError reports whether err is a rejection by an open circuit.
func IsOpenError(err error) bool {
	return errors.Is(err, ErrOpen)
}

// Stats is a point-in-time view of a breaker.
type Stats struct {
	Name                string     `json:"name"`
	State               string     `json:"state"`
	ConsecutiveFailures uint32     `json:"consecutive_failures"`
	SuccessesInHalfOpen uint32     `json:"successes_in_half_open"`
	LastFailureTime     *time.Time `json:"last_failure_time,omitempty"`
}

// CircuitBreaker wraps gobreaker.CircuitBreaker with typed errors and stats.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
	name    string

	mu          sync.Mutex
	lastFailure time.Time
}

// New creates a new circuit breaker with the given configuration.
func New(cfg Config) *CircuitBreaker {
	cb := &CircuitBreaker{name: cfg.Name}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.SuccessThreshold,
		Interval:    0, // counts only reset on state change
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				slog.String("circuit", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			metrics.RecordCircuitState(name, int(fromGobreaker(to)))
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			cb.mu.Lock()
			cb.lastFailure = time.Now()
			cb.mu.Unlock()
			return false
		},
	}

	cb.breaker = gobreaker.NewCircuitBreaker(settings)
	metrics.RecordCircuitState(cfg.Name, int(StateClosed))
	return cb
}

// Execute runs fn through the circuit breaker.
// If the circuit rejects the call, fn is not invoked and an *OpenError is returned.
func (cb *CircuitBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := cb.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.RecordCircuitRejection(cb.name)
		return nil, &OpenError{Name: cb.name, State: cb.State(), cause: err}
	}
	return result, err
}

// Run is Execute for functions without a result.
func (cb *CircuitBreaker) Run(fn func() error) error {
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// Check returns an *OpenError, counted as a rejection, when the breaker is
// open. It runs nothing and leaves the breaker's counters untouched, so
// callers can fail fast before spending a rate-limit token.
func (cb *CircuitBreaker) Check() error {
	if st := cb.State(); st == StateOpen {
		metrics.RecordCircuitRejection(cb.name)
		return &OpenError{Name: cb.name, State: st, cause: gobreaker.ErrOpenState}
	}
	return nil
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() State {
	return fromGobreaker(cb.breaker.State())
}

// Name returns the name of the circuit breaker.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// IsOpen returns true if the circuit breaker is in the open state.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.breaker.State() == gobreaker.StateOpen
}

// Stats returns the current counters of the breaker.
func (cb *CircuitBreaker) Stats() Stats {
	state := cb.State()
	counts := cb.breaker.Counts()

	s := Stats{
		Name:                cb.name,
		State:               state.String(),
		ConsecutiveFailures: counts.ConsecutiveFailures,
	}
	if state == StateHalfOpen {
		s.SuccessesInHalfOpen = counts.ConsecutiveSuccesses
	}

	cb.mu.Lock()
	if !cb.lastFailure.IsZero() {
		t := cb.lastFailure
		s.LastFailureTime = &t
	}
	cb.mu.Unlock()
	return s
}
