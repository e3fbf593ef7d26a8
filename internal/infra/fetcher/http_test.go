package fetcher_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batch-collector/internal/domain/entity"
	"batch-collector/internal/infra/fetcher"
	"batch-collector/internal/resilience/failure"
	"batch-collector/internal/usecase/collect"
)

var _ collect.Fetcher = (*fetcher.HTTPFetcher)(nil)

func source(baseURL string) entity.Source {
	return entity.Source{
		Name: "dart", Upstream: "dart", BaseURL: baseURL,
		APIKeyEnv: "DART_API_KEY", APIKeyParam: "crtfc_key",
		PageSize: 100, MaxPages: 5, Enabled: true,
	}
}

func TestHTTPFetcher_Fetch_QueryAndCount(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		assert.Equal(t, "batch-collector/1.0", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"status":"000","list":[{"a":1},{"a":2},{"a":3}]}`))
	}))
	defer srv.Close()

	f := fetcher.NewHTTPFetcher(fetcher.DefaultConfig())
	page, err := f.Fetch(context.Background(), collect.FetchRequest{
		Source:   source(srv.URL + "/api/list.json?corp_cls=Y"),
		APIKey:   "secret",
		Date:     "2024-01-02",
		Page:     2,
		PageSize: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Records)
	assert.Contains(t, string(page.Body), `"status":"000"`)

	q := gotQuery.Load().(map[string][]string)
	assert.Equal(t, []string{"2024-01-02"}, q["date"])
	assert.Equal(t, []string{"2"}, q["page"])
	assert.Equal(t, []string{"3"}, q["page_size"])
	assert.Equal(t, []string{"secret"}, q["crtfc_key"])
	assert.Equal(t, []string{"Y"}, q["corp_cls"])
}

func TestHTTPFetcher_Fetch_NoKeyParamWithoutKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("crtfc_key"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	page, err := fetcher.NewHTTPFetcher(fetcher.DefaultConfig()).Fetch(context.Background(),
		collect.FetchRequest{Source: source(srv.URL), Date: "2024-01-02", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Records)
}

func TestHTTPFetcher_Fetch_StatusErrors(t *testing.T) {
	tests := []struct {
		status   int
		category failure.Category
	}{
		{http.StatusUnauthorized, failure.AuthFailure},
		{http.StatusTooManyRequests, failure.RateLimited},
		{http.StatusServiceUnavailable, failure.Unknown},
		{http.StatusGatewayTimeout, failure.NetworkTimeout},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			}))
			defer srv.Close()

			_, err := fetcher.NewHTTPFetcher(fetcher.DefaultConfig()).Fetch(context.Background(),
				collect.FetchRequest{Source: source(srv.URL), Date: "2024-01-02", Page: 1, PageSize: 10})

			var httpErr *failure.HTTPError
			require.True(t, errors.As(err, &httpErr), "got %v", err)
			assert.Equal(t, tt.status, httpErr.StatusCode)
			assert.Contains(t, httpErr.Message, "nope")
			assert.Equal(t, tt.category, failure.Classify(err))
		})
	}
}

func TestHTTPFetcher_Fetch_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	_, err := fetcher.NewHTTPFetcher(fetcher.DefaultConfig()).Fetch(context.Background(),
		collect.FetchRequest{Source: source(srv.URL), Date: "2024-01-02", Page: 1, PageSize: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrDataFormat)
	assert.Equal(t, failure.DataFormatError, failure.Classify(err))
	assert.False(t, failure.IsRetryable(err))
}

func TestHTTPFetcher_Fetch_BodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[` + strings.Repeat(`1,`, 1000) + `1]`))
	}))
	defer srv.Close()

	cfg := fetcher.DefaultConfig()
	cfg.MaxBodySize = 1024
	_, err := fetcher.NewHTTPFetcher(cfg).Fetch(context.Background(),
		collect.FetchRequest{Source: source(srv.URL), Date: "2024-01-02", Page: 1, PageSize: 10})
	assert.ErrorIs(t, err, fetcher.ErrBodyTooLarge)
	assert.ErrorIs(t, err, failure.ErrDataFormat)
}

func TestHTTPFetcher_Fetch_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := fetcher.NewHTTPFetcher(fetcher.DefaultConfig()).Fetch(ctx,
		collect.FetchRequest{Source: source(srv.URL), Date: "2024-01-02", Page: 1, PageSize: 10})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPFetcher_Fetch_InvalidBaseURL(t *testing.T) {
	_, err := fetcher.NewHTTPFetcher(fetcher.DefaultConfig()).Fetch(context.Background(),
		collect.FetchRequest{Source: source("ftp://example.com/list"), Date: "2024-01-02", Page: 1, PageSize: 10})
	assert.ErrorIs(t, err, fetcher.ErrInvalidURL)
}

func TestHTTPFetcher_Fetch_RedirectLimit(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+r.URL.Path+"x", http.StatusFound)
	}))
	defer srv.Close()

	cfg := fetcher.DefaultConfig()
	cfg.MaxRedirects = 2
	_, err := fetcher.NewHTTPFetcher(cfg).Fetch(context.Background(),
		collect.FetchRequest{Source: source(srv.URL + "/a"), Date: "2024-01-02", Page: 1, PageSize: 10})
	assert.ErrorIs(t, err, fetcher.ErrInvalidURL)
}

func TestCountRecords(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{name: "top-level array", body: `[1,2,3,4]`, want: 4},
		{name: "list field", body: `{"list":[{},{}]}`, want: 2},
		{name: "data field", body: `{"data":[{}]}`, want: 1},
		{name: "items field", body: `{"meta":{},"items":[{},{},{}]}`, want: 3},
		{name: "list wins over items", body: `{"items":[1],"list":[1,2]}`, want: 2},
		{name: "non-array data skipped", body: `{"data":{"x":1},"items":[1]}`, want: 1},
		{name: "object without records", body: `{"status":"013","message":"no data"}`, want: 0},
		{name: "empty array", body: `[]`, want: 0},
		{name: "scalar", body: `42`, wantErr: true},
		{name: "not json", body: `oops`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fetcher.CountRecords([]byte(tt.body))
			if tt.wantErr {
				assert.ErrorIs(t, err, failure.ErrDataFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
