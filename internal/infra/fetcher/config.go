package fetcher

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	envconfig "batch-collector/internal/pkg/config"
)

// Config controls the HTTP behaviour shared by every source.
//
// Security settings:
//   - DenyPrivateIPs: rejects base URLs that resolve to private addresses
//   - MaxBodySize: rejects oversized pages before decoding
//   - MaxRedirects: bounds redirect chains
//
// Timeout is a backstop on the whole exchange. Per-attempt deadlines come
// from the retry executor and are normally shorter.
type Config struct {
	// Timeout is the http.Client timeout.
	// Default: 60s
	Timeout time.Duration

	// MaxBodySize is the largest page body accepted, in bytes.
	// Default: 20MB
	MaxBodySize int64

	// MaxRedirects is the maximum number of redirects to follow.
	// Default: 3
	MaxRedirects int

	// UserAgent is sent with every request.
	// Default: "batch-collector/1.0"
	UserAgent string

	// DenyPrivateIPs blocks base URLs resolving to loopback, private or
	// link-local addresses. Off by default so local mocks work.
	DenyPrivateIPs bool
}

// DefaultConfig returns the fetcher defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:      60 * time.Second,
		MaxBodySize:  20 * 1024 * 1024,
		MaxRedirects: 3,
		UserAgent:    "batch-collector/1.0",
	}
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}

	minBodySize := int64(1024)              // 1KB
	maxBodySize := int64(100 * 1024 * 1024) // 100MB
	if c.MaxBodySize < minBodySize || c.MaxBodySize > maxBodySize {
		return fmt.Errorf("max body size must be between %d and %d bytes, got %d", minBodySize, maxBodySize, c.MaxBodySize)
	}

	if c.MaxRedirects < 0 || c.MaxRedirects > 10 {
		return fmt.Errorf("max redirects must be between 0 and 10, got %d", c.MaxRedirects)
	}

	if c.UserAgent == "" {
		return fmt.Errorf("user agent must not be empty")
	}

	return nil
}

// LoadConfigFromEnv overlays FETCH_* environment variables on the defaults
// and validates the result. Unlike the worker settings these fail closed: a
// value that does not parse is an error rather than a silent default.
//
// Environment variables:
//   - FETCH_TIMEOUT: duration string, e.g. "45s"
//   - FETCH_MAX_BODY_SIZE: integer in bytes
//   - FETCH_MAX_REDIRECTS: integer
//   - FETCH_USER_AGENT: string
//   - FETCH_DENY_PRIVATE_IPS: boolean
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	var errs []error
	take := func(warning string) {
		if warning != "" {
			errs = append(errs, errors.New(warning))
		}
	}

	timeout := envconfig.LoadDuration("FETCH_TIMEOUT", cfg.Timeout, envconfig.ValidatePositiveDuration)
	take(timeout.Warning)
	cfg.Timeout = timeout.Value

	body := envconfig.Load("FETCH_MAX_BODY_SIZE", cfg.MaxBodySize, func(s string) (int64, error) {
		return strconv.ParseInt(s, 10, 64)
	}, nil)
	take(body.Warning)
	cfg.MaxBodySize = body.Value

	redirects := envconfig.LoadInt("FETCH_MAX_REDIRECTS", cfg.MaxRedirects, nil)
	take(redirects.Warning)
	cfg.MaxRedirects = redirects.Value

	cfg.UserAgent = envconfig.LoadString("FETCH_USER_AGENT", cfg.UserAgent, nil).Value

	deny := envconfig.LoadBool("FETCH_DENY_PRIVATE_IPS", cfg.DenyPrivateIPs)
	take(deny.Warning)
	cfg.DenyPrivateIPs = deny.Value

	if err := errors.Join(errs...); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}
