// Package failure classifies errors returned by upstream calls and persistence.
// Every resilience component (rate control, retry, recovery analysis) asks this
// package what kind of failure it is looking at instead of inspecting errors itself.
package failure

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Category is the coarse failure class used to pick recovery behavior.
type Category int

const (
	// Unknown covers everything the classifier cannot place.
	Unknown Category = iota
	// NetworkTimeout covers request timeouts and dropped connections.
	NetworkTimeout
	// RateLimited means the upstream throttled the caller (HTTP 429 and friends).
	RateLimited
	// AuthFailure means the credential was rejected. Never retried.
	AuthFailure
	// DatabaseError covers persistence failures.
	DatabaseError
	// DataFormatError means the upstream answered with a payload we cannot decode.
	DataFormatError
)

// String returns the snake_case label used in logs and metrics.
func (c Category) String() string {
	switch c {
	case NetworkTimeout:
		return "network_timeout"
	case RateLimited:
		return "rate_limit"
	case AuthFailure:
		return "auth_failure"
	case DatabaseError:
		return "database_error"
	case DataFormatError:
		return "data_format_error"
	default:
		return "unknown"
	}
}

// Sentinel errors shared by fetchers and the orchestrator.
var (
	// ErrRequestTimeout marks a single upstream call that exceeded its own deadline
	// while the surrounding run was still alive.
	ErrRequestTimeout = errors.New("upstream request timed out")

	// ErrAuth marks a rejected or missing credential.
	ErrAuth = errors.New("upstream authentication failed")

	// ErrDataFormat marks an undecodable upstream payload.
	ErrDataFormat = errors.New("malformed upstream payload")
)

// HTTPError represents a non-2xx upstream response.
type HTTPError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Classify maps err onto a Category. Typed checks run first; the message
// heuristics only apply to errors that carry no structured information.
func Classify(err error) Category {
	if err == nil {
		return Unknown
	}

	if errors.Is(err, ErrAuth) {
		return AuthFailure
	}
	if errors.Is(err, ErrRequestTimeout) || errors.Is(err, syscall.ETIMEDOUT) || errors.Is(err, syscall.ECONNRESET) {
		return NetworkTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NetworkTimeout
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusTooManyRequests:
			return RateLimited
		case httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden:
			return AuthFailure
		case httpErr.StatusCode == http.StatusGatewayTimeout || httpErr.StatusCode == http.StatusRequestTimeout:
			return NetworkTimeout
		}
	}

	if errors.Is(err, ErrDataFormat) {
		return DataFormatError
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return DataFormatError
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return DatabaseError
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "econnreset"):
		return NetworkTimeout
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429") || strings.Contains(msg, "too many requests"):
		return RateLimited
	case strings.Contains(msg, "auth") || strings.Contains(msg, "401") || strings.Contains(msg, "403"):
		return AuthFailure
	case strings.Contains(msg, "database") || strings.Contains(msg, "connection"):
		return DatabaseError
	case strings.Contains(msg, "parse") || strings.Contains(msg, "json"):
		return DataFormatError
	}
	return Unknown
}

// IsRetryable reports whether another attempt could plausibly succeed.
// Cancellation of the caller's context is never retryable, nor is a bad credential.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrAuth) {
		return false
	}
	if errors.Is(err, ErrRequestTimeout) {
		return true
	}
	// A bare deadline error means the run itself ran out of time.
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "rate limit")
}

// IsServerError reports whether err is a generic upstream fault (5xx or a timeout),
// as opposed to throttling or a client-side problem.
func IsServerError(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode >= 500 && httpErr.StatusCode < 600 {
		return true
	}
	return Classify(err) == NetworkTimeout
}
