package entity

import (
	"fmt"
)

// Source is one collectable data source bound to an upstream API.
// Several sources may share an upstream and therefore its rate and circuit state.
type Source struct {
	// Name identifies the source in runs, logs and metrics ("dart", "krx", ...)
	Name string `json:"name"`

	// Upstream keys the rate controller and circuit breaker
	Upstream string `json:"upstream"`

	// BaseURL is the endpoint the fetcher pages through
	BaseURL string `json:"base_url"`

	// APIKeyEnv names the environment variable holding the credential (optional)
	APIKeyEnv string `json:"api_key_env,omitempty"`

	// APIKeyParam is the query parameter the credential is sent as
	APIKeyParam string `json:"api_key_param,omitempty"`

	PageSize int `json:"page_size"`
	MaxPages int `json:"max_pages"`

	Enabled bool `json:"enabled"`
}

// Source limits shared by configuration and CLI flags.
const (
	MinPageSize = 1
	MaxPageSize = 100
	MinMaxPages = 1
	MaxMaxPages = 100
)

// Validate checks the fields required to collect from the source.
func (s *Source) Validate() error {
	if s.Name == "" {
		return &ValidationError{Field: "name", Message: "source name is required"}
	}
	if s.Upstream == "" {
		return &ValidationError{Field: "upstream", Message: fmt.Sprintf("source %q has no upstream", s.Name)}
	}
	if err := ValidateURL(s.BaseURL); err != nil {
		return err
	}
	if s.PageSize < MinPageSize || s.PageSize > MaxPageSize {
		return &ValidationError{
			Field:   "page_size",
			Message: fmt.Sprintf("page_size must be between %d and %d", MinPageSize, MaxPageSize),
		}
	}
	if s.MaxPages < MinMaxPages || s.MaxPages > MaxMaxPages {
		return &ValidationError{
			Field:   "max_pages",
			Message: fmt.Sprintf("max_pages must be between %d and %d", MinMaxPages, MaxMaxPages),
		}
	}
	if s.APIKeyEnv != "" && s.APIKeyParam == "" {
		return &ValidationError{Field: "api_key_param", Message: "api_key_param is required when api_key_env is set"}
	}
	return nil
}
