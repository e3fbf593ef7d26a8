package config

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withEnv(t *testing.T, env map[string]string) {
	t.Helper()
	orig := lookupEnv
	t.Cleanup(func() { lookupEnv = orig })
	lookupEnv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestLoadDuration(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		want     time.Duration
		fallback bool
	}{
		{name: "unset", env: map[string]string{}, want: 30 * time.Minute},
		{name: "empty", env: map[string]string{"JOB_TIMEOUT": ""}, want: 30 * time.Minute},
		{name: "valid", env: map[string]string{"JOB_TIMEOUT": "45m"}, want: 45 * time.Minute},
		{name: "unparseable", env: map[string]string{"JOB_TIMEOUT": "soon"}, want: 30 * time.Minute, fallback: true},
		{name: "negative", env: map[string]string{"JOB_TIMEOUT": "-1m"}, want: 30 * time.Minute, fallback: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withEnv(t, tt.env)
			r := LoadDuration("JOB_TIMEOUT", 30*time.Minute, ValidatePositiveDuration)
			assert.Equal(t, tt.want, r.Value)
			assert.Equal(t, tt.fallback, r.FallbackApplied)
			if tt.fallback {
				assert.Contains(t, r.Warning, "JOB_TIMEOUT")
			} else {
				assert.Empty(t, r.Warning)
			}
		})
	}
}

func TestLoadInt_Range(t *testing.T) {
	withEnv(t, map[string]string{"SOURCE_PARALLELISM": "64"})
	r := LoadInt("SOURCE_PARALLELISM", 4, IntRange(1, 16))
	assert.True(t, r.FallbackApplied)
	assert.Equal(t, 4, r.Value)

	withEnv(t, map[string]string{"SOURCE_PARALLELISM": "8"})
	r = LoadInt("SOURCE_PARALLELISM", 4, IntRange(1, 16))
	assert.False(t, r.FallbackApplied)
	assert.Equal(t, 8, r.Value)
}

func TestLoadString_Timezone(t *testing.T) {
	withEnv(t, map[string]string{"WORKER_TIMEZONE": "Mars/Olympus"})
	r := LoadString("WORKER_TIMEZONE", "Asia/Seoul", ValidateTimezone)
	assert.True(t, r.FallbackApplied)
	assert.Equal(t, "Asia/Seoul", r.Value)
}

func TestLoadBool(t *testing.T) {
	withEnv(t, map[string]string{"DRY_RUN": "true"})
	assert.True(t, LoadBool("DRY_RUN", false).Value)

	withEnv(t, map[string]string{"DRY_RUN": "maybe"})
	r := LoadBool("DRY_RUN", false)
	assert.False(t, r.Value)
	assert.True(t, r.FallbackApplied)
}

func TestApply_RecordsFallback(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConfigMetrics("test", reg)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	withEnv(t, map[string]string{"REQUEST_TIMEOUT": "never"})
	got := Apply(m, logger, "request_timeout", LoadDuration("REQUEST_TIMEOUT", 30*time.Second, nil))

	assert.Equal(t, 30*time.Second, got)
	assert.Contains(t, buf.String(), "configuration fallback applied")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("request_timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationErrorsTotal.WithLabelValues("request_timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbackActive.WithLabelValues("request_timeout")))

	withEnv(t, map[string]string{"REQUEST_TIMEOUT": "10s"})
	got = Apply(m, logger, "request_timeout", LoadDuration("REQUEST_TIMEOUT", 30*time.Second, nil))
	assert.Equal(t, 10*time.Second, got)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.FallbackActive.WithLabelValues("request_timeout")))
}

func TestApply_NilMetrics(t *testing.T) {
	withEnv(t, map[string]string{"X": "bad"})
	got := Apply[int](nil, slog.Default(), "x", LoadInt("X", 7, nil))
	assert.Equal(t, 7, got)
}

func TestConfigMetrics_LoadTimestamp(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConfigMetrics("stamp", reg)
	m.RecordLoadTimestamp()
	require.Greater(t, testutil.ToFloat64(m.LoadTimestamp), 0.0)
}
