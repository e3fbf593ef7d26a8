// Package collect fans a collection run out across independent sources and
// drives historical backfills day by day. Every source call goes through the
// resilience executor, and a failing source never aborts its siblings.
package collect

import "errors"

// Setup errors. These are the only errors CollectDailyData and
// CollectHistoricalData return; per-source failures are recorded in the summary.
var (
	// ErrUnknownSource indicates a requested source name is not configured.
	ErrUnknownSource = errors.New("unknown source")

	// ErrMissingCredential indicates a source's API key variable is unset.
	ErrMissingCredential = errors.New("missing credential")

	// ErrNoSources indicates the run resolved to an empty source set.
	ErrNoSources = errors.New("no sources to collect")

	// ErrInvalidOptions indicates out-of-range page options.
	ErrInvalidOptions = errors.New("invalid collection options")
)
