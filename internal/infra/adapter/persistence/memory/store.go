// Package memory provides in-process implementations of the repository
// interfaces. The worker falls back to it when DATABASE_URL is unset, and the
// collect CLI uses it for local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"batch-collector/internal/domain/entity"
)

// Store keeps run records, collection logs and raw payloads in maps guarded by
// a single mutex. Records are copied on the way in and out so callers cannot
// mutate stored state.
type Store struct {
	mu       sync.RWMutex
	runs     map[string]*entity.RunRecord
	logs     []entity.CollectionLog
	payloads map[payloadKey]entity.RawPayload
}

type payloadKey struct {
	source string
	date   string
	page   int
}

func NewStore() *Store {
	return &Store{
		runs:     map[string]*entity.RunRecord{},
		payloads: map[payloadKey]entity.RawPayload{},
	}
}

func (s *Store) SaveRunLog(_ context.Context, r *entity.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = cloneRun(r)
	return nil
}

// RecentRuns returns the runs started at or after since, oldest first.
func (s *Store) RecentRuns(_ context.Context, since time.Time) ([]*entity.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*entity.RunRecord
	for _, r := range s.runs {
		if !r.StartedAt.Before(since) {
			out = append(out, cloneRun(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *Store) SaveCollectionLog(_ context.Context, l entity.CollectionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, l)
	return nil
}

// RecentCollectionLogs returns the logs dated on or after since (YYYY-MM-DD).
func (s *Store) RecentCollectionLogs(_ context.Context, since string) ([]entity.CollectionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []entity.CollectionLog
	for _, l := range s.logs {
		if l.Date >= since {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *Store) SavePayload(_ context.Context, p entity.RawPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Body = append([]byte(nil), p.Body...)
	s.payloads[payloadKey{p.Source, p.Date, p.Page}] = p
	return nil
}

// Payloads returns the stored pages for source and date ordered by page.
func (s *Store) Payloads(source, date string) []entity.RawPayload {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []entity.RawPayload
	for k, p := range s.payloads {
		if k.source == source && k.date == date {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Page < out[j].Page })
	return out
}

func cloneRun(r *entity.RunRecord) *entity.RunRecord {
	c := *r
	c.Outcomes = append([]entity.SourceOutcome(nil), r.Outcomes...)
	c.Errors = append([]string(nil), r.Errors...)
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		c.FinishedAt = &t
	}
	if r.Parameters != nil {
		c.Parameters = make(map[string]any, len(r.Parameters))
		for k, v := range r.Parameters {
			c.Parameters[k] = v
		}
	}
	return &c
}
