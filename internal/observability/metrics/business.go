package metrics

import (
	"time"
)

// RecordUpstreamRate sets the current permitted rate of an upstream.
func RecordUpstreamRate(upstream string, rate float64) {
	UpstreamRateCurrent.WithLabelValues(upstream).Set(rate)
}

// RecordRateAdjustment counts one rate change.
// Direction should be "increase", "decrease" or "backoff".
func RecordRateAdjustment(upstream, direction string) {
	UpstreamRateAdjustmentsTotal.WithLabelValues(upstream, direction).Inc()
}

// RecordCircuitState exports the breaker state as 0 (closed), 1 (half-open) or 2 (open).
func RecordCircuitState(upstream string, state int) {
	CircuitBreakerState.WithLabelValues(upstream).Set(float64(state))
}

// RecordCircuitRejection counts a call rejected by an open or saturated breaker.
func RecordCircuitRejection(upstream string) {
	CircuitBreakerRejectionsTotal.WithLabelValues(upstream).Inc()
}

// RecordRetryAttempt counts one executor attempt by outcome.
func RecordRetryAttempt(upstream, outcome string) {
	RetryAttemptsTotal.WithLabelValues(upstream, outcome).Inc()
}

// RecordFailureCategory counts one classified failure.
func RecordFailureCategory(category string) {
	FailureCategoryTotal.WithLabelValues(category).Inc()
}

// RecordDeadLetter counts an operation given up for good.
func RecordDeadLetter(source string) {
	DeadLettersTotal.WithLabelValues(source).Inc()
}

// RecordSourceCollection records the outcome of collecting one source for one day.
// This is the main signal for per-source health on dashboards.
//
// Example:
//
//	start := time.Now()
//	n, err := collect(ctx, source, date)
//	metrics.RecordSourceCollection(source, err == nil, n, time.Since(start))
func RecordSourceCollection(source string, success bool, records int, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	SourceCollectionsTotal.WithLabelValues(source, status).Inc()
	SourceCollectionDuration.WithLabelValues(source).Observe(duration.Seconds())
	if records > 0 {
		RecordsCollectedTotal.WithLabelValues(source).Add(float64(records))
	}
}
