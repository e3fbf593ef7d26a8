package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batch-collector/internal/domain/entity"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	sources := cfg.EntitySources()
	require.Len(t, sources, 4)
	assert.Equal(t, "dart", sources[0].Name)
	assert.Equal(t, "DART_API_KEY", sources[0].APIKeyEnv)
	assert.True(t, sources[0].Enabled)
	assert.False(t, sources[3].Enabled, "ai source is opt-in")

	jobs := cfg.JobDefinitions()
	byID := map[string]entity.JobDefinition{}
	for _, j := range jobs {
		byID[j.ID] = j
		assert.Equal(t, entity.OverlapSkip, j.Overlap)
	}
	assert.Equal(t, "0 6 * * *", byID["morning"].Schedule)
	assert.Equal(t, "yesterday", byID["morning"].DateMode)
	assert.Equal(t, entity.JobKindDaily, byID["afternoon"].Kind)
	assert.Equal(t, entity.JobKindWeeklyReport, byID["weekly-report"].Kind)
	assert.Empty(t, byID["backfill"].Schedule)
}

func TestLoad_EmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	yml := `
sources:
  - name: dart
    base_url: https://opendart.fss.or.kr/api/list.json
    api_key_env: DART_API_KEY
    api_key_param: crtfc_key
    page_size: 50
  - name: rates
    upstream: bok
    base_url: https://ecos.bok.or.kr/api/StatisticSearch
    enabled: false
jobs:
  - id: nightly
    schedule: "30 1 * * *"
    date_mode: yesterday
    sources: [dart]
    timeout: 20m
upstreams:
  dart:
    rate:
      requests_per_second: 2
      min_rate: 0.5
      max_rate: 4
      burst_allowance: 2
    circuit:
      failure_threshold: 3
      success_threshold: 1
      timeout: 30s
dead_letter:
  url: redis://localhost:6379/1
  prefix: collector
  ttl: 72h
`
	path := filepath.Join(t.TempDir(), "collector.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	sources := cfg.EntitySources()
	require.Len(t, sources, 2)
	assert.Equal(t, "dart", sources[0].Upstream, "upstream defaults to name")
	assert.Equal(t, 50, sources[0].PageSize)
	assert.Equal(t, defaultMaxPages, sources[0].MaxPages)
	assert.Equal(t, "bok", sources[1].Upstream)
	assert.False(t, sources[1].Enabled)

	jobs := cfg.JobDefinitions()
	require.Len(t, jobs, 1)
	assert.Equal(t, entity.JobKindDaily, jobs[0].Kind)
	assert.Equal(t, []string{"dart"}, jobs[0].Sources)
	assert.Equal(t, 20*time.Minute, jobs[0].Timeout)

	rate := cfg.RateOverrides()
	require.Contains(t, rate, "dart")
	assert.Equal(t, 2.0, rate["dart"].RequestsPerSecond)

	circuit := cfg.CircuitOverrides()
	require.Contains(t, circuit, "dart")
	assert.Equal(t, "dart", circuit["dart"].Name)
	assert.Equal(t, 30*time.Second, circuit["dart"].Timeout)
	assert.Equal(t, uint32(3), circuit["dart"].FailureThreshold)

	assert.Equal(t, "redis://localhost:6379/1", cfg.DeadLetter.URL)
	assert.Equal(t, 72*time.Hour, cfg.DeadLetter.TTL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yml  string
	}{
		{"empty document", ``},
		{"unknown field", "sources:\n  - name: dart\n    base_url: https://a.example\n    colour: red\n"},
		{"bad url", "sources:\n  - name: dart\n    base_url: ftp://a.example\n"},
		{"page size too large", "sources:\n  - name: dart\n    base_url: https://a.example\n    page_size: 1000\n"},
		{"key env without param", "sources:\n  - name: dart\n    base_url: https://a.example\n    api_key_env: K\n"},
		{"duplicate source", "sources:\n  - name: a\n    base_url: https://a.example\n  - name: a\n    base_url: https://b.example\n"},
		{"unknown job source", "sources:\n  - name: a\n    base_url: https://a.example\njobs:\n  - id: j\n    sources: [b]\n"},
		{"unknown job kind", "sources:\n  - name: a\n    base_url: https://a.example\njobs:\n  - id: j\n    kind: cleanup\n"},
		{"bad schedule", "sources:\n  - name: a\n    base_url: https://a.example\njobs:\n  - id: j\n    schedule: every morning\n"},
		{"duplicate job", "sources:\n  - name: a\n    base_url: https://a.example\njobs:\n  - id: j\n  - id: j\n"},
		{"bad rate", "sources:\n  - name: a\n    base_url: https://a.example\nupstreams:\n  a:\n    rate:\n      requests_per_second: 10\n      min_rate: 1\n      max_rate: 5\n      burst_allowance: 1\n"},
		{"malformed yaml", "sources: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yml))
			assert.Error(t, err)
		})
	}
}
