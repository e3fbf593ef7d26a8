package fetcher

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"batch-collector/internal/observability/metrics"
	"batch-collector/internal/observability/tracing"
	"batch-collector/internal/resilience/failure"
	"batch-collector/internal/usecase/collect"
)

// Query parameters every source endpoint receives.
const (
	ParamDate     = "date"
	ParamPage     = "page"
	ParamPageSize = "page_size"
)

// recordFields are the object keys searched, in order, for the record array
// when a page is a JSON object rather than an array.
var recordFields = []string{"list", "data", "items"}

// HTTPFetcher implements collect.Fetcher for paged JSON endpoints.
//
// Each request is a GET on the source's BaseURL with the date, page and
// page_size query parameters, plus the API key under the source's
// APIKeyParam. The body is returned untouched; only the record count is
// decoded from it.
//
// Error mapping:
//   - non-2xx status: *failure.HTTPError with the status code
//   - undecodable body: wraps failure.ErrDataFormat
//   - body over MaxBodySize: ErrBodyTooLarge (also a data format error)
//
// Thread safety: HTTPFetcher is safe for concurrent use.
type HTTPFetcher struct {
	config Config
	base   http.RoundTripper

	mu      sync.Mutex
	clients map[string]*http.Client
}

// NewHTTPFetcher builds a fetcher whose connections enforce TLS 1.2+.
// Each upstream gets its own client so outbound spans carry the upstream name.
func NewHTTPFetcher(config Config) *HTTPFetcher {
	return NewHTTPFetcherWithTransport(config, &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	})
}

// NewHTTPFetcherWithTransport is NewHTTPFetcher with a caller-supplied base
// transport.
func NewHTTPFetcherWithTransport(config Config, base http.RoundTripper) *HTTPFetcher {
	return &HTTPFetcher{
		config:  config,
		base:    base,
		clients: map[string]*http.Client{},
	}
}

func (f *HTTPFetcher) clientFor(upstream string) *http.Client {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[upstream]; ok {
		return c
	}
	c := &http.Client{
		Timeout:   f.config.Timeout,
		Transport: tracing.NewTransport(upstream, f.base),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= f.config.MaxRedirects {
				return fmt.Errorf("%w: stopped after %d redirects", ErrInvalidURL, len(via))
			}
			if _, err := validateURL(req.URL.String(), f.config.DenyPrivateIPs); err != nil {
				return fmt.Errorf("redirect target validation failed: %w", err)
			}
			return nil
		},
	}
	f.clients[upstream] = c
	return c
}

// Fetch requests one page and counts its records.
func (f *HTTPFetcher) Fetch(ctx context.Context, req collect.FetchRequest) (collect.Page, error) {
	u, err := f.pageURL(req)
	if err != nil {
		return collect.Page{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return collect.Page{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", f.config.UserAgent)

	start := time.Now()
	resp, err := f.clientFor(req.Source.Upstream).Do(httpReq)
	if err != nil {
		metrics.RecordUpstreamRequest(req.Source.Upstream, "error", time.Since(start))
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Err != nil {
			return collect.Page{}, urlErr.Err
		}
		return collect.Page{}, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	metrics.RecordUpstreamRequest(req.Source.Upstream, statusClass(resp.StatusCode), time.Since(start))

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodySize+1))
	if err != nil {
		return collect.Page{}, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return collect.Page{}, &failure.HTTPError{
			StatusCode: resp.StatusCode,
			Message:    statusMessage(resp.Status, body),
		}
	}

	if int64(len(body)) > f.config.MaxBodySize {
		return collect.Page{}, fmt.Errorf("%w: %w: page exceeds %d bytes",
			failure.ErrDataFormat, ErrBodyTooLarge, f.config.MaxBodySize)
	}

	records, err := CountRecords(body)
	if err != nil {
		return collect.Page{}, err
	}
	return collect.Page{Body: body, Records: records}, nil
}

func (f *HTTPFetcher) pageURL(req collect.FetchRequest) (string, error) {
	u, err := validateURL(req.Source.BaseURL, f.config.DenyPrivateIPs)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(ParamDate, req.Date)
	q.Set(ParamPage, strconv.Itoa(req.Page))
	q.Set(ParamPageSize, strconv.Itoa(req.PageSize))
	if req.APIKey != "" && req.Source.APIKeyParam != "" {
		q.Set(req.Source.APIKeyParam, req.APIKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// CountRecords returns the number of records in a page body: the length of a
// top-level array, or of the first array found under list, data or items.
// An object without any of those fields counts as zero records.
func CountRecords(body []byte) (int, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return 0, fmt.Errorf("%w: %w", failure.ErrDataFormat, err)
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		return len(arr), nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return 0, fmt.Errorf("%w: page is neither an array nor an object", failure.ErrDataFormat)
	}
	for _, field := range recordFields {
		v, ok := obj[field]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, &arr); err == nil {
			return len(arr), nil
		}
	}
	return 0, nil
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

// statusMessage keeps error messages short and free of large bodies.
func statusMessage(status string, body []byte) string {
	const maxSnippet = 200
	if len(body) == 0 {
		return status
	}
	snippet := string(body)
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet] + "..."
	}
	return status + ": " + snippet
}
