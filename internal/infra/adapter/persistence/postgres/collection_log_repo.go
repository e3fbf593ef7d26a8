package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"batch-collector/internal/domain/entity"
	"batch-collector/internal/observability/metrics"
	"batch-collector/internal/repository"
	"batch-collector/internal/resilience/circuitbreaker"
)

type CollectionLogRepo struct {
	db *circuitbreaker.DBCircuitBreaker
}

func NewCollectionLogRepo(db *circuitbreaker.DBCircuitBreaker) repository.CollectionLogRepository {
	return &CollectionLogRepo{db: db}
}

const insertCollectionLog = `
INSERT INTO data_collection_logs
       (date, source, status, record_count, error_message, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6)`

func (repo *CollectionLogRepo) SaveCollectionLog(ctx context.Context, l entity.CollectionLog) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("save_collection_log", time.Since(start)) }()

	var msg sql.NullString
	if l.ErrorMessage != "" {
		msg = sql.NullString{String: l.ErrorMessage, Valid: true}
	}
	_, err := repo.db.ExecContext(ctx, insertCollectionLog,
		l.Date, l.Source, string(l.Status), l.RecordCount, msg, l.DurationMs)
	if err != nil {
		return fmt.Errorf("SaveCollectionLog: %w", err)
	}
	return nil
}

const selectRecentCollectionLogs = `
SELECT to_char(date, 'YYYY-MM-DD'), source, status, record_count,
       COALESCE(error_message, ''), duration_ms
FROM data_collection_logs
WHERE date >= $1
ORDER BY date ASC, created_at ASC`

func (repo *CollectionLogRepo) RecentCollectionLogs(ctx context.Context, since string) ([]entity.CollectionLog, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("recent_collection_logs", time.Since(start)) }()

	rows, err := repo.db.QueryContext(ctx, selectRecentCollectionLogs, since)
	if err != nil {
		return nil, fmt.Errorf("RecentCollectionLogs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var logs []entity.CollectionLog
	for rows.Next() {
		var (
			l      entity.CollectionLog
			status string
		)
		if err := rows.Scan(&l.Date, &l.Source, &status, &l.RecordCount,
			&l.ErrorMessage, &l.DurationMs); err != nil {
			return nil, fmt.Errorf("RecentCollectionLogs: %w", err)
		}
		l.Status = entity.OutcomeStatus(status)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("RecentCollectionLogs: %w", err)
	}
	return logs, nil
}
