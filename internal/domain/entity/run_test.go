package entity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name        string
		success     int
		failed      int
		setupFailed bool
		want        RunStatus
	}{
		{name: "all succeeded", success: 3, failed: 0, want: RunStatusSuccess},
		{name: "nothing to do", success: 0, failed: 0, want: RunStatusSuccess},
		{name: "some failed", success: 2, failed: 1, want: RunStatusPartial},
		{name: "all failed", success: 0, failed: 3, want: RunStatusFailed},
		{name: "setup failure wins", success: 3, failed: 0, setupFailed: true, want: RunStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.success, tt.failed, tt.setupFailed))
		})
	}
}

func TestRunRecord_FinalizeOnce(t *testing.T) {
	start := time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC)
	r := NewRunRecord("run-1", "morning", JobKindDaily, TriggerScheduled, start)
	assert.Equal(t, RunStatusRunning, r.Status)
	assert.False(t, r.Finalized())

	require.NoError(t, r.Finalize(start.Add(90*time.Second), 2, 1, nil))
	assert.Equal(t, RunStatusPartial, r.Status)
	assert.Equal(t, 90*time.Second, r.Duration())

	err := r.Finalize(start.Add(time.Hour), 3, 0, nil)
	assert.True(t, errors.Is(err, ErrRunFinalized))
	assert.Equal(t, RunStatusPartial, r.Status, "second finalize must not change the record")
}

func TestRunRecord_FinalizeSetupError(t *testing.T) {
	r := NewRunRecord("run-2", "manual", JobKindDaily, TriggerManual, time.Now())

	require.NoError(t, r.Finalize(time.Now(), 0, 0, errors.New("missing DART_API_KEY")))

	assert.Equal(t, RunStatusFailed, r.Status)
	assert.Equal(t, []string{"missing DART_API_KEY"}, r.Errors)
}

func TestCollectionLogFrom(t *testing.T) {
	o := SourceOutcome{
		Source:     "krx",
		Date:       "2024-01-02",
		Status:     OutcomeFailed,
		Records:    0,
		DurationMs: 1200,
		Error:      "HTTP 503: Service Unavailable",
	}

	log := CollectionLogFrom(o)

	assert.Equal(t, CollectionLog{
		Date:         "2024-01-02",
		Source:       "krx",
		Status:       OutcomeFailed,
		ErrorMessage: "HTTP 503: Service Unavailable",
		DurationMs:   1200,
	}, log)
}

func TestSource_Validate(t *testing.T) {
	valid := func() Source {
		return Source{
			Name:        "dart",
			Upstream:    "dart",
			BaseURL:     "https://opendart.fss.or.kr/api/list.json",
			APIKeyEnv:   "DART_API_KEY",
			APIKeyParam: "crtfc_key",
			PageSize:    100,
			MaxPages:    10,
			Enabled:     true,
		}
	}

	tests := []struct {
		name      string
		mutate    func(*Source)
		wantField string
	}{
		{name: "valid", mutate: func(*Source) {}},
		{name: "missing name", mutate: func(s *Source) { s.Name = "" }, wantField: "name"},
		{name: "missing upstream", mutate: func(s *Source) { s.Upstream = "" }, wantField: "upstream"},
		{name: "bad scheme", mutate: func(s *Source) { s.BaseURL = "ftp://example.com" }, wantField: "base_url"},
		{name: "no host", mutate: func(s *Source) { s.BaseURL = "https://" }, wantField: "base_url"},
		{name: "empty url", mutate: func(s *Source) { s.BaseURL = "" }, wantField: "base_url"},
		{name: "page size zero", mutate: func(s *Source) { s.PageSize = 0 }, wantField: "page_size"},
		{name: "page size too large", mutate: func(s *Source) { s.PageSize = 101 }, wantField: "page_size"},
		{name: "max pages too large", mutate: func(s *Source) { s.MaxPages = 101 }, wantField: "max_pages"},
		{name: "key env without param", mutate: func(s *Source) { s.APIKeyParam = "" }, wantField: "api_key_param"},
		{name: "no credential at all", mutate: func(s *Source) { s.APIKeyEnv, s.APIKeyParam = "", "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.wantField, ve.Field)
		})
	}
}

func TestJobDefinition_Validate(t *testing.T) {
	tests := []struct {
		name    string
		job     JobDefinition
		wantErr bool
	}{
		{name: "daily", job: JobDefinition{ID: "morning", Kind: JobKindDaily, Schedule: "0 6 * * *", DateMode: "yesterday"}},
		{name: "weekly report", job: JobDefinition{ID: "weekly", Kind: JobKindWeeklyReport, Overlap: OverlapSkip}},
		{name: "missing id", job: JobDefinition{Kind: JobKindDaily}, wantErr: true},
		{name: "unknown kind", job: JobDefinition{ID: "x", Kind: "cleanup"}, wantErr: true},
		{name: "unsupported overlap", job: JobDefinition{ID: "x", Kind: JobKindDaily, Overlap: "queue"}, wantErr: true},
		{name: "negative timeout", job: JobDefinition{ID: "x", Kind: JobKindDaily, Timeout: -time.Second}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidationFailed)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
