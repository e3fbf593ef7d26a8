// Package config loads environment settings fail-open: a missing value takes
// its default silently, an invalid one takes its default with a warning.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// lookupEnv is swapped in tests.
var lookupEnv = os.LookupEnv

// Result is the outcome of loading one setting.
type Result[T any] struct {
	Key             string
	Value           T
	Warning         string
	FallbackApplied bool
}

// Load reads key, parses it and validates it. Unset or empty values yield def
// without a warning; parse or validation failures yield def with one.
func Load[T any](key string, def T, parse func(string) (T, error), validate func(T) error) Result[T] {
	raw, ok := lookupEnv(key)
	if !ok || raw == "" {
		return Result[T]{Key: key, Value: def}
	}

	fallback := func(err error) Result[T] {
		return Result[T]{
			Key:             key,
			Value:           def,
			Warning:         fmt.Sprintf("invalid %s=%q: %v, falling back to default %v", key, raw, err, def),
			FallbackApplied: true,
		}
	}

	v, err := parse(raw)
	if err != nil {
		return fallback(err)
	}
	if validate != nil {
		if err := validate(v); err != nil {
			return fallback(err)
		}
	}
	return Result[T]{Key: key, Value: v}
}

func LoadString(key, def string, validate func(string) error) Result[string] {
	return Load(key, def, func(s string) (string, error) { return s, nil }, validate)
}

func LoadInt(key string, def int, validate func(int) error) Result[int] {
	return Load(key, def, strconv.Atoi, validate)
}

func LoadDuration(key string, def time.Duration, validate func(time.Duration) error) Result[time.Duration] {
	return Load(key, def, time.ParseDuration, validate)
}

func LoadBool(key string, def bool) Result[bool] {
	return Load(key, def, strconv.ParseBool, nil)
}

// Apply logs and counts a fallback, if any, and returns the value to use.
// A nil m skips the metrics.
func Apply[T any](m *ConfigMetrics, logger *slog.Logger, field string, r Result[T]) T {
	if r.FallbackApplied {
		logger.Warn("configuration fallback applied",
			slog.String("field", field),
			slog.String("env", r.Key),
			slog.String("warning", r.Warning))
		if m != nil {
			m.RecordValidationError(field)
			m.RecordFallback(field)
		}
	}
	if m != nil {
		m.SetFallbackActive(field, r.FallbackApplied)
	}
	return r.Value
}
