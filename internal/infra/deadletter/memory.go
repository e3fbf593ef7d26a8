package deadletter

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"batch-collector/internal/domain/entity"
)

// MemoryQueue is an in-process dead-letter queue for dry runs and tests.
type MemoryQueue struct {
	mu    sync.Mutex
	items map[string]entity.DeadLetter
}

// NewMemoryQueue returns an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{items: map[string]entity.DeadLetter{}}
}

// Push stores dl, replacing any entry with the same ID. A zero CreatedAt is
// set to now.
func (q *MemoryQueue) Push(_ context.Context, dl entity.DeadLetter) error {
	if dl.ID == "" {
		return fmt.Errorf("push dead letter: %w", entity.ErrInvalidInput)
	}
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = time.Now()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items[dl.ID] = dl
	return nil
}

// List returns up to limit dead letters, oldest first. limit <= 0 returns all.
func (q *MemoryQueue) List(_ context.Context, limit int) ([]entity.DeadLetter, error) {
	q.mu.Lock()
	out := make([]entity.DeadLetter, 0, len(q.items))
	for _, dl := range q.items {
		out = append(out, dl)
	}
	q.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Remove deletes a dead letter or returns an error matching entity.ErrNotFound.
func (q *MemoryQueue) Remove(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.items[id]; !ok {
		return notFound(id)
	}
	delete(q.items, id)
	return nil
}

// Count returns the number of stored dead letters.
func (q *MemoryQueue) Count(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}
