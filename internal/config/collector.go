// Package config holds the collector's declarative configuration: sources,
// scheduled jobs and per-upstream resilience overrides, read from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"batch-collector/internal/domain/calendar"
	"batch-collector/internal/domain/entity"
	"batch-collector/internal/infra/deadletter"
	envconfig "batch-collector/internal/pkg/config"
	"batch-collector/internal/resilience/circuitbreaker"
	"batch-collector/internal/resilience/ratecontrol"
)

// CollectorConfig is the root of the collector YAML file. A dead_letter
// section without a url keeps dead letters in memory.
type CollectorConfig struct {
	Sources    []SourceConfig            `yaml:"sources"`
	Jobs       []JobConfig               `yaml:"jobs"`
	Upstreams  map[string]UpstreamConfig `yaml:"upstreams"`
	DeadLetter deadletter.RedisConfig    `yaml:"dead_letter"`
}

// SourceConfig declares one source. Enabled defaults to true.
type SourceConfig struct {
	Name        string `yaml:"name"`
	Upstream    string `yaml:"upstream"`
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	APIKeyParam string `yaml:"api_key_param"`
	PageSize    int    `yaml:"page_size"`
	MaxPages    int    `yaml:"max_pages"`
	Enabled     *bool  `yaml:"enabled"`
}

// JobConfig declares one job. Kind defaults to daily_collection.
type JobConfig struct {
	ID       string        `yaml:"id"`
	Schedule string        `yaml:"schedule"`
	Kind     string        `yaml:"kind"`
	DateMode string        `yaml:"date_mode"`
	Sources  []string      `yaml:"sources"`
	Timeout  time.Duration `yaml:"timeout"`
}

// UpstreamConfig overrides the rate and circuit presets of one upstream.
type UpstreamConfig struct {
	Rate    *ratecontrol.Config    `yaml:"rate"`
	Circuit *circuitbreaker.Config `yaml:"circuit"`
}

const (
	defaultPageSize = 100
	defaultMaxPages = 10
)

// Default returns the built-in configuration used when no file is given.
func Default() *CollectorConfig {
	disabled := false
	return &CollectorConfig{
		Sources: []SourceConfig{
			{
				Name: "dart", Upstream: "dart",
				BaseURL:   "https://opendart.fss.or.kr/api/list.json",
				APIKeyEnv: "DART_API_KEY", APIKeyParam: "crtfc_key",
				PageSize: 100, MaxPages: 10,
			},
			{
				Name: "krx", Upstream: "krx",
				BaseURL:   "https://data-dbg.krx.co.kr/svc/apis/sto/stk_bydd_trd",
				APIKeyEnv: "KRX_API_KEY", APIKeyParam: "AUTH_KEY",
				PageSize: 100, MaxPages: 20,
			},
			{
				Name: "bok", Upstream: "bok",
				BaseURL:   "https://ecos.bok.or.kr/api/StatisticSearch",
				APIKeyEnv: "BOK_API_KEY", APIKeyParam: "auth_key",
				PageSize: 100, MaxPages: 5,
			},
			{
				// local content service, enabled per deployment
				Name: "ai", Upstream: "external",
				BaseURL:  "http://localhost:8000/api/content",
				PageSize: 50, MaxPages: 5,
				Enabled:  &disabled,
			},
		},
		Jobs: []JobConfig{
			{ID: "morning", Schedule: "0 6 * * *", DateMode: calendar.ExprYesterday, Timeout: 30 * time.Minute},
			{ID: "afternoon", Schedule: "0 14 * * 1-5", DateMode: calendar.ExprToday, Timeout: 30 * time.Minute},
			{ID: "evening", Schedule: "0 22 * * *", DateMode: calendar.ExprToday, Timeout: 30 * time.Minute},
			{ID: "weekly-report", Schedule: "0 2 * * 1", Kind: string(entity.JobKindWeeklyReport), Timeout: 10 * time.Minute},
			{ID: "backfill", Kind: string(entity.JobKindHistorical), Timeout: 6 * time.Hour},
		},
	}
}

// Load reads the YAML file at path. An empty path returns Default.
// The path comes from the operator's environment, not from request input.
func Load(path string) (*CollectorConfig, error) {
	if path == "" {
		return Default(), nil
	}
	// #nosec G304 -- path is operator-supplied configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a collector YAML document. Unknown fields are
// rejected so typos surface at startup.
func Parse(data []byte) (*CollectorConfig, error) {
	var cfg CollectorConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks every source and job and cross-checks job source lists.
func (c *CollectorConfig) Validate() error {
	if len(c.Sources) == 0 {
		return &entity.ValidationError{Field: "sources", Message: "at least one source is required"}
	}

	names := map[string]bool{}
	for _, src := range c.EntitySources() {
		if err := src.Validate(); err != nil {
			return fmt.Errorf("source %q: %w", src.Name, err)
		}
		if names[src.Name] {
			return &entity.ValidationError{Field: "sources", Message: fmt.Sprintf("duplicate source %q", src.Name)}
		}
		names[src.Name] = true
	}

	ids := map[string]bool{}
	for _, job := range c.JobDefinitions() {
		if err := job.Validate(); err != nil {
			return fmt.Errorf("job %q: %w", job.ID, err)
		}
		if ids[job.ID] {
			return &entity.ValidationError{Field: "jobs", Message: fmt.Sprintf("duplicate job %q", job.ID)}
		}
		ids[job.ID] = true
		if job.Schedule != "" {
			if err := envconfig.ValidateCronSchedule(job.Schedule); err != nil {
				return fmt.Errorf("job %q: %w", job.ID, err)
			}
		}
		for _, s := range job.Sources {
			if !names[s] {
				return &entity.ValidationError{Field: "jobs", Message: fmt.Sprintf("job %q references unknown source %q", job.ID, s)}
			}
		}
	}

	for name, up := range c.Upstreams {
		if up.Rate != nil {
			if err := up.Rate.Validate(); err != nil {
				return fmt.Errorf("upstream %q rate: %w", name, err)
			}
		}
	}
	return nil
}

// EntitySources converts the declared sources, filling page defaults.
func (c *CollectorConfig) EntitySources() []entity.Source {
	out := make([]entity.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		src := entity.Source{
			Name:        s.Name,
			Upstream:    s.Upstream,
			BaseURL:     s.BaseURL,
			APIKeyEnv:   s.APIKeyEnv,
			APIKeyParam: s.APIKeyParam,
			PageSize:    s.PageSize,
			MaxPages:    s.MaxPages,
			Enabled:     s.Enabled == nil || *s.Enabled,
		}
		if src.Upstream == "" {
			src.Upstream = src.Name
		}
		if src.PageSize == 0 {
			src.PageSize = defaultPageSize
		}
		if src.MaxPages == 0 {
			src.MaxPages = defaultMaxPages
		}
		out = append(out, src)
	}
	return out
}

// JobDefinitions converts the declared jobs. Every job uses the skip
// overlap policy.
func (c *CollectorConfig) JobDefinitions() []entity.JobDefinition {
	out := make([]entity.JobDefinition, 0, len(c.Jobs))
	for _, j := range c.Jobs {
		kind := entity.JobKind(j.Kind)
		if kind == "" {
			kind = entity.JobKindDaily
		}
		out = append(out, entity.JobDefinition{
			ID:       j.ID,
			Schedule: j.Schedule,
			Kind:     kind,
			Sources:  j.Sources,
			DateMode: j.DateMode,
			Timeout:  j.Timeout,
			Overlap:  entity.OverlapSkip,
		})
	}
	return out
}

// RateOverrides returns the per-upstream rate settings declared in the file.
func (c *CollectorConfig) RateOverrides() map[string]ratecontrol.Config {
	out := map[string]ratecontrol.Config{}
	for name, up := range c.Upstreams {
		if up.Rate != nil {
			out[name] = *up.Rate
		}
	}
	return out
}

// CircuitOverrides returns the per-upstream breaker settings declared in the file.
func (c *CollectorConfig) CircuitOverrides() map[string]circuitbreaker.Config {
	out := map[string]circuitbreaker.Config{}
	for name, up := range c.Upstreams {
		if up.Circuit != nil {
			cb := *up.Circuit
			cb.Name = name
			out[name] = cb
		}
	}
	return out
}
