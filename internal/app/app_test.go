package app_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batch-collector/internal/app"
	"batch-collector/internal/config"
	"batch-collector/internal/domain/entity"
	"batch-collector/internal/infra/fetcher"
	"batch-collector/internal/usecase/collect"
	"batch-collector/internal/usecase/schedule"
)

func testConfig(t *testing.T, baseURL string) *config.CollectorConfig {
	t.Helper()
	cfg, err := config.Parse([]byte(`
sources:
  - name: mock
    base_url: ` + baseURL + `
    page_size: 2
    max_pages: 3
jobs:
  - id: daily
    date_mode: yesterday
  - id: backfill
    kind: historical_collection
`))
	require.NoError(t, err)
	return cfg
}

func newApp(t *testing.T, cfg *config.CollectorConfig) *app.App {
	t.Helper()
	t.Setenv("REDIS_URL", "")
	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

	a, err := app.New(context.Background(), app.Options{
		Collector: cfg,
		Fetch:     fetcher.DefaultConfig(),
		Collect: collect.Config{
			Now:           func() time.Time { return now },
			InterDayDelay: time.Millisecond,
		},
		Sched:  schedule.Config{Now: func() time.Time { return now }},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNew_InMemoryDailyRun(t *testing.T) {
	var dates []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dates = append(dates, r.URL.Query().Get("date"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"list":[{"id":1}]}`)
	}))
	defer srv.Close()

	a := newApp(t, testConfig(t, srv.URL))
	assert.Nil(t, a.DB)

	record, err := a.Scheduler.Trigger(context.Background(), "daily", entity.TriggerManual, schedule.Params{})
	require.NoError(t, err)
	assert.Equal(t, entity.RunStatusSuccess, record.Status)
	require.Len(t, record.Outcomes, 1)
	assert.Equal(t, "mock", record.Outcomes[0].Source)
	assert.Equal(t, "2024-01-09", record.Outcomes[0].Date)
	assert.Equal(t, 1, record.Outcomes[0].Records)
	assert.Equal(t, []string{"2024-01-09"}, dates, "a short page ends pagination")

	runs, err := a.Runs.RecentRuns(context.Background(), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, record.ID, runs[0].ID)
}

func TestNew_UnknownSourceIsSetupFailure(t *testing.T) {
	a := newApp(t, testConfig(t, "http://127.0.0.1:1"))

	record, err := a.Scheduler.Trigger(context.Background(), "daily", entity.TriggerManual, schedule.Params{
		Options: collect.Options{Sources: []string{"nope"}},
	})
	require.ErrorIs(t, err, collect.ErrUnknownSource)
	require.NotNil(t, record)
	assert.Equal(t, entity.RunStatusFailed, record.Status)
}

func TestNew_DefaultsWhenCollectorMissing(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	a, err := app.New(context.Background(), app.Options{
		Fetch:  fetcher.DefaultConfig(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	defer a.Close()

	ids := []string{}
	for _, j := range a.Scheduler.Jobs() {
		ids = append(ids, j.ID)
	}
	assert.Contains(t, ids, "morning")
	assert.Contains(t, ids, "weekly-report")
}

func TestNew_Errors(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("bad redis url", func(t *testing.T) {
		bad := *cfg
		bad.DeadLetter.URL = "not a url"
		_, err := app.New(context.Background(), app.Options{Collector: &bad, Fetch: fetcher.DefaultConfig(), Logger: logger})
		assert.Error(t, err)
	})

	t.Run("invalid fetcher config", func(t *testing.T) {
		t.Setenv("REDIS_URL", "")
		_, err := app.New(context.Background(), app.Options{Collector: cfg, Logger: logger})
		assert.Error(t, err)
	})
}
