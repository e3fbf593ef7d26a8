package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"batch-collector/internal/domain/entity"
	"batch-collector/internal/observability/metrics"
	"batch-collector/internal/repository"
	"batch-collector/internal/resilience/circuitbreaker"
)

// RunLogRepo persists RunRecords in batch_run_logs. A record is written at
// start and again once finalized; the second write replaces the first.
type RunLogRepo struct {
	db *circuitbreaker.DBCircuitBreaker
}

func NewRunLogRepo(db *circuitbreaker.DBCircuitBreaker) repository.RunLogRepository {
	return &RunLogRepo{db: db}
}

const upsertRunLog = `
INSERT INTO batch_run_logs
       (id, job_id, job_kind, trigger, status, started_at, finished_at,
        success_count, failed_count, outcomes, errors, parameters, result)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO UPDATE SET
       status        = EXCLUDED.status,
       finished_at   = EXCLUDED.finished_at,
       success_count = EXCLUDED.success_count,
       failed_count  = EXCLUDED.failed_count,
       outcomes      = EXCLUDED.outcomes,
       errors        = EXCLUDED.errors,
       parameters    = EXCLUDED.parameters,
       result        = EXCLUDED.result`

func (repo *RunLogRepo) SaveRunLog(ctx context.Context, r *entity.RunRecord) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("save_run_log", time.Since(start)) }()

	outcomes := r.Outcomes
	if outcomes == nil {
		outcomes = []entity.SourceOutcome{}
	}
	outcomesJSON, err := json.Marshal(outcomes)
	if err != nil {
		return fmt.Errorf("SaveRunLog: marshal outcomes: %w", err)
	}
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	errorsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("SaveRunLog: marshal errors: %w", err)
	}
	paramsJSON, err := nullableJSON(r.Parameters, r.Parameters == nil)
	if err != nil {
		return fmt.Errorf("SaveRunLog: marshal parameters: %w", err)
	}
	resultJSON, err := nullableJSON(r.Result, r.Result == nil)
	if err != nil {
		return fmt.Errorf("SaveRunLog: marshal result: %w", err)
	}

	_, err = repo.db.ExecContext(ctx, upsertRunLog,
		r.ID, r.JobID, string(r.JobKind), string(r.Trigger), string(r.Status),
		r.StartedAt, r.FinishedAt, r.Success, r.Failed,
		outcomesJSON, errorsJSON, paramsJSON, resultJSON,
	)
	if err != nil {
		return fmt.Errorf("SaveRunLog: %w", err)
	}
	return nil
}

const selectRecentRuns = `
SELECT id, job_id, job_kind, trigger, status, started_at, finished_at,
       success_count, failed_count, outcomes, errors, parameters, result
FROM batch_run_logs
WHERE started_at >= $1
ORDER BY started_at ASC`

func (repo *RunLogRepo) RecentRuns(ctx context.Context, since time.Time) ([]*entity.RunRecord, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("recent_runs", time.Since(start)) }()

	rows, err := repo.db.QueryContext(ctx, selectRecentRuns, since)
	if err != nil {
		return nil, fmt.Errorf("RecentRuns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*entity.RunRecord
	for rows.Next() {
		var (
			r                     entity.RunRecord
			kind, trigger, status string
			finished              sql.NullTime
			outcomes, errs        []byte
			params, result        []byte
		)
		if err := rows.Scan(&r.ID, &r.JobID, &kind, &trigger, &status,
			&r.StartedAt, &finished, &r.Success, &r.Failed,
			&outcomes, &errs, &params, &result); err != nil {
			return nil, fmt.Errorf("RecentRuns: %w", err)
		}
		r.JobKind = entity.JobKind(kind)
		r.Trigger = entity.Trigger(trigger)
		r.Status = entity.RunStatus(status)
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		if err := unmarshalIfPresent(outcomes, &r.Outcomes); err != nil {
			return nil, fmt.Errorf("RecentRuns: outcomes of %s: %w", r.ID, err)
		}
		if err := unmarshalIfPresent(errs, &r.Errors); err != nil {
			return nil, fmt.Errorf("RecentRuns: errors of %s: %w", r.ID, err)
		}
		if err := unmarshalIfPresent(params, &r.Parameters); err != nil {
			return nil, fmt.Errorf("RecentRuns: parameters of %s: %w", r.ID, err)
		}
		if len(result) > 0 {
			r.Result = json.RawMessage(result)
		}
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("RecentRuns: %w", err)
	}
	return runs, nil
}

func nullableJSON(v any, isNil bool) ([]byte, error) {
	if isNil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalIfPresent(data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
