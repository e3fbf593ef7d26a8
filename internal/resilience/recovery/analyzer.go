// Package recovery tracks failure patterns per operation and decides how to
// recover from each failure: retry with an adjusted operation, abandon the
// operation for a cool-down (circuit break), or give up (dead letter).
package recovery

import (
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"batch-collector/internal/observability/metrics"
	"batch-collector/internal/resilience/failure"
)

const (
	anomalyConsecutive = 5
	anomalyHourly      = 10
	frequencyWindow    = time.Hour

	// ReasonMaxAttempts is the dead-letter reason when the policy is exhausted.
	ReasonMaxAttempts = "max_attempts_exceeded"
)

// Decision is one of Retry, CircuitBreak or DeadLetter.
type Decision interface {
	decision()
}

// Retry asks the caller to wait Delay and run Operation again.
type Retry struct {
	Delay     time.Duration
	Operation Operation
}

// CircuitBreak advises abandoning the operation and not retrying before Delay.
type CircuitBreak struct {
	Delay time.Duration
}

// DeadLetter means the operation is given up for good.
type DeadLetter struct {
	Reason string
}

func (Retry) decision()        {}
func (CircuitBreak) decision() {}
func (DeadLetter) decision()   {}

// FailureContext carries what the caller knows about the failed call.
type FailureContext struct {
	// Attempts is the number of attempts made so far, the failed one included
	Attempts int
	Policy   Policy
}

// Pattern is a snapshot of the failure history of one operation key.
type Pattern struct {
	Key                 Key              `json:"-"`
	Category            failure.Category `json:"-"`
	Frequency           int              `json:"frequency"`
	RecentFailures      int              `json:"recent_failures"`
	LastOccurrence      time.Time        `json:"last_occurrence"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
	Anomalous           bool             `json:"anomalous"`
}

// Status summarizes the analyzer.
type Status struct {
	TotalPatterns     int      `json:"total_patterns"`
	AnomalousPatterns int      `json:"anomalous_patterns"`
	AnomalousKeys     []string `json:"anomalous_keys,omitempty"`
}

type patternEntry struct {
	mu          sync.Mutex
	p           Pattern
	occurrences []time.Time
}

// Analyzer keeps one failure pattern per operation key.
type Analyzer struct {
	logger *slog.Logger
	now    func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu       sync.Mutex
	patterns map[Key]*patternEntry
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// WithRand sets the jitter source.
func WithRand(r *rand.Rand) Option {
	return func(a *Analyzer) { a.rnd = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// NewAnalyzer creates an empty analyzer.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		logger:   slog.Default(),
		now:      time.Now,
		patterns: make(map[Key]*patternEntry),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.rnd == nil {
		// #nosec G404 -- jitter does not need cryptographic randomness.
		a.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return a
}

// HandleFailure records err against op and returns the recovery decision.
// Decision order: circuit break when the consecutive failures reach the policy
// threshold, dead letter when attempts are exhausted, otherwise retry.
func (a *Analyzer) HandleFailure(op Operation, err error, fc FailureContext) Decision {
	key := KeyOf(op)
	category := failure.Classify(err)
	now := a.now()
	metrics.RecordFailureCategory(category.String())

	entry := a.entry(key)
	entry.mu.Lock()
	entry.occurrences = append(pruneBefore(entry.occurrences, now.Add(-frequencyWindow)), now)
	entry.p.Category = category
	entry.p.Frequency++
	entry.p.RecentFailures = len(entry.occurrences)
	entry.p.LastOccurrence = now
	entry.p.ConsecutiveFailures++
	wasAnomalous := entry.p.Anomalous
	entry.p.Anomalous = entry.p.ConsecutiveFailures >= anomalyConsecutive || entry.p.RecentFailures >= anomalyHourly
	consecutive := entry.p.ConsecutiveFailures
	anomalous := entry.p.Anomalous
	entry.mu.Unlock()

	if anomalous && !wasAnomalous {
		a.logger.Warn("anomalous failure pattern detected",
			slog.String("key", key.String()),
			slog.String("category", category.String()),
			slog.Int("consecutive_failures", consecutive))
	}

	policy := fc.Policy
	if policy.CircuitBreakThreshold > 0 && consecutive >= policy.CircuitBreakThreshold {
		return CircuitBreak{Delay: policy.CircuitBreakDelay}
	}
	if fc.Attempts >= policy.MaxAttempts {
		return DeadLetter{Reason: ReasonMaxAttempts}
	}

	a.rndMu.Lock()
	delay := policy.Backoff(fc.Attempts, a.rnd.Float64)
	a.rndMu.Unlock()

	return Retry{
		Delay:     delay,
		Operation: op.AdjustForFailure(category).WithAttempt(fc.Attempts + 1),
	}
}

// OnSuccess resets the consecutive failure count and clears the anomaly flag.
func (a *Analyzer) OnSuccess(key Key) {
	a.mu.Lock()
	entry, ok := a.patterns[key]
	a.mu.Unlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	entry.p.ConsecutiveFailures = 0
	entry.p.Anomalous = false
	entry.mu.Unlock()
}

// Pattern returns a snapshot of the pattern for key.
func (a *Analyzer) Pattern(key Key) (Pattern, bool) {
	a.mu.Lock()
	entry, ok := a.patterns[key]
	a.mu.Unlock()
	if !ok {
		return Pattern{}, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.p, true
}

// Status counts tracked and anomalous patterns.
func (a *Analyzer) Status() Status {
	a.mu.Lock()
	entries := make([]*patternEntry, 0, len(a.patterns))
	for _, e := range a.patterns {
		entries = append(entries, e)
	}
	a.mu.Unlock()

	s := Status{TotalPatterns: len(entries)}
	for _, e := range entries {
		e.mu.Lock()
		if e.p.Anomalous {
			s.AnomalousPatterns++
			s.AnomalousKeys = append(s.AnomalousKeys, e.p.Key.String())
		}
		e.mu.Unlock()
	}
	sort.Strings(s.AnomalousKeys)
	return s
}

func (a *Analyzer) entry(key Key) *patternEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.patterns[key]
	if !ok {
		e = &patternEntry{p: Pattern{Key: key}}
		a.patterns[key] = e
	}
	return e
}

func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	return ts[i:]
}
