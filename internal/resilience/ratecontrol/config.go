// Package ratecontrol provides per-upstream adaptive rate limiting.
// Each upstream gets a token bucket (golang.org/x/time/rate) whose refill rate is
// raised slowly while calls succeed and cut sharply when the upstream pushes back.
package ratecontrol

import "fmt"

// Config holds the rate limiting parameters for one upstream.
type Config struct {
	// RequestsPerSecond is the initial refill rate of the bucket
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// BurstAllowance is the bucket capacity
	BurstAllowance int `yaml:"burst_allowance"`

	// MinRate is the floor the adaptive rate never drops below
	MinRate float64 `yaml:"min_rate"`

	// MaxRate is the ceiling the adaptive rate never exceeds
	MaxRate float64 `yaml:"max_rate"`
}

// DefaultConfig returns the configuration used for upstreams without a preset.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 10,
		BurstAllowance:    20,
		MinRate:           1,
		MaxRate:           50,
	}
}

// DARTConfig returns the preset for the disclosure service.
func DARTConfig() Config {
	return Config{RequestsPerSecond: 8, BurstAllowance: 15, MinRate: 1, MaxRate: 12}
}

// KRXConfig returns the preset for the market-data service.
func KRXConfig() Config {
	return Config{RequestsPerSecond: 12, BurstAllowance: 25, MinRate: 1, MaxRate: 20}
}

// BOKConfig returns the preset for the central bank statistics service.
func BOKConfig() Config {
	return Config{RequestsPerSecond: 5, BurstAllowance: 10, MinRate: 1, MaxRate: 8}
}

// ExternalConfig returns the conservative preset for third-party services
// such as the AI content service.
func ExternalConfig() Config {
	return Config{RequestsPerSecond: 3, BurstAllowance: 5, MinRate: 1, MaxRate: 5}
}

// UpstreamConfig returns the preset for a known upstream, or DefaultConfig.
func UpstreamConfig(upstream string) Config {
	switch upstream {
	case "dart":
		return DARTConfig()
	case "krx":
		return KRXConfig()
	case "bok":
		return BOKConfig()
	case "external":
		return ExternalConfig()
	default:
		return DefaultConfig()
	}
}

// Validate checks the bounds relationship between the fields.
func (c Config) Validate() error {
	if c.MinRate <= 0 {
		return fmt.Errorf("min rate must be positive, got %v", c.MinRate)
	}
	if c.MaxRate < c.MinRate {
		return fmt.Errorf("max rate %v is below min rate %v", c.MaxRate, c.MinRate)
	}
	if c.RequestsPerSecond < c.MinRate || c.RequestsPerSecond > c.MaxRate {
		return fmt.Errorf("requests per second %v outside [%v, %v]", c.RequestsPerSecond, c.MinRate, c.MaxRate)
	}
	if c.BurstAllowance < 1 {
		return fmt.Errorf("burst allowance must be at least 1, got %d", c.BurstAllowance)
	}
	return nil
}
