package recovery

import (
	"fmt"
	"time"

	"batch-collector/internal/resilience/failure"
)

// Kind identifies the family of an operation. Policies are chosen per kind.
type Kind string

const (
	KindDataCollection Kind = "data_collection"
	KindAPICall        Kind = "api_call"
	KindDatabase       Kind = "database_operation"
)

// maxAdjustedTimeout caps timeout growth after repeated network timeouts.
const maxAdjustedTimeout = 60 * time.Second

// Key identifies a failure pattern.
type Key struct {
	Kind Kind
	ID   string
}

// String returns "kind:id".
func (k Key) String() string {
	return string(k.Kind) + ":" + k.ID
}

// Operation is one unit of retryable work. Implementations are values:
// WithAttempt and AdjustForFailure return modified copies.
type Operation interface {
	ID() string
	Kind() Kind
	Attempt() int
	WithAttempt(n int) Operation
	AdjustForFailure(c failure.Category) Operation
}

// KeyOf returns the pattern key of op.
func KeyOf(op Operation) Key {
	return Key{Kind: op.Kind(), ID: op.ID()}
}

// FetchOperation pulls one day of data for one source.
type FetchOperation struct {
	SourceID string
	Upstream string
	Date     time.Time
	PageSize int
	MaxPages int
	Timeout  time.Duration
	attempt  int
}

// ID identifies the source and day being collected.
func (o FetchOperation) ID() string {
	return fmt.Sprintf("%s:%s", o.SourceID, o.Date.Format(time.DateOnly))
}

// Kind is always KindDataCollection.
func (o FetchOperation) Kind() Kind { return KindDataCollection }

// Attempt is the 1-based attempt number, zero before the first attempt.
func (o FetchOperation) Attempt() int { return o.attempt }

// AttemptTimeout is the deadline of a single fetch attempt.
func (o FetchOperation) AttemptTimeout() time.Duration { return o.Timeout }

// WithAttempt returns a copy of o at attempt n.
func (o FetchOperation) WithAttempt(n int) Operation {
	o.attempt = n
	return o
}

// AdjustForFailure shrinks the page size when throttled and stretches the
// timeout after a network timeout.
func (o FetchOperation) AdjustForFailure(c failure.Category) Operation {
	switch c {
	case failure.RateLimited:
		o.PageSize = halveBatch(o.PageSize)
	case failure.NetworkTimeout:
		o.Timeout = stretchTimeout(o.Timeout)
	}
	return o
}

// APICallOperation is a single request against an upstream endpoint.
type APICallOperation struct {
	Upstream string
	Endpoint string
	Timeout  time.Duration
	attempt  int
}

// ID is the upstream name followed by the endpoint path.
func (o APICallOperation) ID() string { return o.Upstream + o.Endpoint }

// Kind is always KindAPICall.
func (o APICallOperation) Kind() Kind { return KindAPICall }

// Attempt is the 1-based attempt number, zero before the first attempt.
func (o APICallOperation) Attempt() int { return o.attempt }

// AttemptTimeout is the deadline of a single request.
func (o APICallOperation) AttemptTimeout() time.Duration { return o.Timeout }

// WithAttempt returns a copy of o at attempt n.
func (o APICallOperation) WithAttempt(n int) Operation {
	o.attempt = n
	return o
}

// AdjustForFailure stretches the timeout after a network timeout.
func (o APICallOperation) AdjustForFailure(c failure.Category) Operation {
	if c == failure.NetworkTimeout {
		o.Timeout = stretchTimeout(o.Timeout)
	}
	return o
}

// StoreOperation writes a batch of rows.
type StoreOperation struct {
	Table     string
	BatchSize int
	attempt   int
}

// ID is the target table.
func (o StoreOperation) ID() string { return o.Table }

// Kind is always KindDatabase.
func (o StoreOperation) Kind() Kind { return KindDatabase }

// Attempt is the 1-based attempt number, zero before the first attempt.
func (o StoreOperation) Attempt() int { return o.attempt }

// WithAttempt returns a copy of o at attempt n.
func (o StoreOperation) WithAttempt(n int) Operation {
	o.attempt = n
	return o
}

// AdjustForFailure halves the batch when the backend pushes back.
func (o StoreOperation) AdjustForFailure(c failure.Category) Operation {
	if c == failure.RateLimited {
		o.BatchSize = halveBatch(o.BatchSize)
	}
	return o
}

func halveBatch(n int) int {
	if n <= 1 {
		return 1
	}
	return n / 2
}

func stretchTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	next := time.Duration(float64(d) * 1.5)
	if next > maxAdjustedTimeout {
		return maxAdjustedTimeout
	}
	return next
}
