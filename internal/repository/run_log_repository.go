package repository

import (
	"context"
	"time"

	"batch-collector/internal/domain/entity"
)

// RunLogRepository persists one record per job invocation.
type RunLogRepository interface {
	// SaveRunLog inserts or updates the record identified by run.ID
	SaveRunLog(ctx context.Context, run *entity.RunRecord) error
	// RecentRuns returns the runs started at or after since, newest first
	RecentRuns(ctx context.Context, since time.Time) ([]*entity.RunRecord, error)
}

// CollectionLogRepository persists per-source, per-day collection entries.
type CollectionLogRepository interface {
	SaveCollectionLog(ctx context.Context, log entity.CollectionLog) error
	// RecentCollectionLogs returns entries whose date is on or after since (YYYY-MM-DD)
	RecentCollectionLogs(ctx context.Context, since string) ([]entity.CollectionLog, error)
}

// PayloadRepository keeps raw upstream pages.
type PayloadRepository interface {
	SavePayload(ctx context.Context, p entity.RawPayload) error
}

// DeadLetterRepository holds operations given up for manual inspection.
type DeadLetterRepository interface {
	Push(ctx context.Context, dl entity.DeadLetter) error
	// List returns at most limit entries, oldest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]entity.DeadLetter, error)
	Remove(ctx context.Context, id string) error
}
