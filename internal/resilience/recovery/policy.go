package recovery

import (
	"math"
	"time"
)

// DefaultJitterFraction is the jitter applied when a policy leaves
// JitterFraction at zero.
const DefaultJitterFraction = 0.1

// Policy holds the retry and circuit-break parameters for one kind of operation.
type Policy struct {
	// MaxAttempts is the total number of attempts, the first one included
	MaxAttempts int `yaml:"max_attempts"`

	// BaseDelay is the delay before the second attempt
	BaseDelay time.Duration `yaml:"base_delay"`

	// MaxDelay caps the exponential delay (jitter is added on top)
	MaxDelay time.Duration `yaml:"max_delay"`

	// Multiplier is the exponential growth factor
	Multiplier float64 `yaml:"multiplier"`

	// CircuitBreakThreshold is the consecutive-failure count at which the
	// analyzer advises abandoning the operation for CircuitBreakDelay
	CircuitBreakThreshold int `yaml:"circuit_break_threshold"`

	// CircuitBreakDelay is the advised cool-down after a circuit break decision
	CircuitBreakDelay time.Duration `yaml:"circuit_break_delay"`

	// JitterFraction is the fraction of delay added as random jitter (0.0 to 1.0).
	// Zero means DefaultJitterFraction; a negative value disables jitter.
	JitterFraction float64 `yaml:"jitter_fraction"`
}

// DataCollectionPolicy is tuned for whole-day collection runs: patient, many attempts.
func DataCollectionPolicy() Policy {
	return Policy{
		MaxAttempts:           5,
		BaseDelay:             2 * time.Second,
		MaxDelay:              60 * time.Second,
		Multiplier:            2,
		CircuitBreakThreshold: 10,
		CircuitBreakDelay:     5 * time.Minute,
		JitterFraction:        DefaultJitterFraction,
	}
}

// APICallPolicy is tuned for single upstream requests.
func APICallPolicy() Policy {
	return Policy{
		MaxAttempts:           3,
		BaseDelay:             1 * time.Second,
		MaxDelay:              30 * time.Second,
		Multiplier:            2,
		CircuitBreakThreshold: 5,
		CircuitBreakDelay:     3 * time.Minute,
		JitterFraction:        DefaultJitterFraction,
	}
}

// DatabasePolicy is tuned for persistence: short delays, slow growth.
func DatabasePolicy() Policy {
	return Policy{
		MaxAttempts:           3,
		BaseDelay:             500 * time.Millisecond,
		MaxDelay:              10 * time.Second,
		Multiplier:            1.5,
		CircuitBreakThreshold: 8,
		CircuitBreakDelay:     2 * time.Minute,
		JitterFraction:        DefaultJitterFraction,
	}
}

// PolicyFor returns the preset for kind. Unknown kinds get DataCollectionPolicy.
func PolicyFor(kind Kind) Policy {
	switch kind {
	case KindAPICall:
		return APICallPolicy()
	case KindDatabase:
		return DatabasePolicy()
	default:
		return DataCollectionPolicy()
	}
}

// Backoff returns the delay to wait after the given failed attempt (1-based):
// min(BaseDelay * Multiplier^(attempt-1), MaxDelay) plus up to JitterFraction of it.
// rnd must return a value in [0, 1); nil disables jitter.
func (p Policy) Backoff(attempt int, rnd func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	jitter := p.JitterFraction
	if jitter == 0 {
		jitter = DefaultJitterFraction
	}
	if jitter > 1 {
		jitter = 1
	}
	if rnd != nil && jitter > 0 {
		delay += rnd() * delay * jitter
	}
	return time.Duration(delay)
}
