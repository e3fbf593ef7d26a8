package collect

import (
	"context"

	"batch-collector/internal/domain/entity"
)

// Fetcher pulls one page of a source's data for one day. Implementations
// classify nothing; errors are returned as-is for the executor to analyze.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (Page, error)
}

// FetchRequest identifies one page.
type FetchRequest struct {
	Source   entity.Source
	APIKey   string
	Date     string
	Page     int
	PageSize int
}

// Page is one upstream response.
type Page struct {
	Body    []byte
	Records int
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req FetchRequest) (Page, error)

func (f FetcherFunc) Fetch(ctx context.Context, req FetchRequest) (Page, error) {
	return f(ctx, req)
}
