package postgres

import (
	"context"
	"fmt"
	"time"

	"batch-collector/internal/domain/entity"
	"batch-collector/internal/observability/metrics"
	"batch-collector/internal/repository"
	"batch-collector/internal/resilience/circuitbreaker"
)

// PayloadRepo stores raw upstream pages. Re-collecting a day overwrites the
// pages it fetched before.
type PayloadRepo struct {
	db *circuitbreaker.DBCircuitBreaker
}

func NewPayloadRepo(db *circuitbreaker.DBCircuitBreaker) repository.PayloadRepository {
	return &PayloadRepo{db: db}
}

const upsertPayload = `
INSERT INTO raw_payloads (source, date, page, records, body, fetched_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (source, date, page) DO UPDATE SET
       records    = EXCLUDED.records,
       body       = EXCLUDED.body,
       fetched_at = EXCLUDED.fetched_at`

func (repo *PayloadRepo) SavePayload(ctx context.Context, p entity.RawPayload) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("save_payload", time.Since(start)) }()

	_, err := repo.db.ExecContext(ctx, upsertPayload,
		p.Source, p.Date, p.Page, p.Records, p.Body, p.FetchedAt)
	if err != nil {
		return fmt.Errorf("SavePayload: %w", err)
	}
	return nil
}
