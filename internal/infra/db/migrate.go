package db

import (
	"database/sql"
)

// MigrateUp creates the collector tables and their indexes. Every statement is
// idempotent, so it runs on each worker start.
func MigrateUp(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS batch_run_logs (
    id            UUID PRIMARY KEY,
    job_id        TEXT NOT NULL,
    job_kind      TEXT NOT NULL,
    trigger       TEXT NOT NULL,
    status        TEXT NOT NULL,
    started_at    TIMESTAMPTZ NOT NULL,
    finished_at   TIMESTAMPTZ,
    success_count INTEGER NOT NULL DEFAULT 0,
    failed_count  INTEGER NOT NULL DEFAULT 0,
    outcomes      JSONB NOT NULL DEFAULT '[]',
    errors        JSONB NOT NULL DEFAULT '[]',
    parameters    JSONB,
    result        JSONB
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS data_collection_logs (
    id            BIGSERIAL PRIMARY KEY,
    date          DATE NOT NULL,
    source        TEXT NOT NULL,
    status        TEXT NOT NULL,
    record_count  INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    duration_ms   BIGINT NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS raw_payloads (
    source     TEXT NOT NULL,
    date       DATE NOT NULL,
    page       INTEGER NOT NULL,
    records    INTEGER NOT NULL DEFAULT 0,
    body       JSONB NOT NULL,
    fetched_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (source, date, page)
)`); err != nil {
		return err
	}

	indexes := []string{
		// weekly report scans the last seven days
		`CREATE INDEX IF NOT EXISTS idx_batch_run_logs_started_at ON batch_run_logs(started_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_batch_run_logs_job_id ON batch_run_logs(job_id)`,
		`CREATE INDEX IF NOT EXISTS idx_data_collection_logs_date ON data_collection_logs(date DESC, source)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return err
		}
	}

	return nil
}
