package database

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS scrape_jobs (
		id            UUID PRIMARY KEY,
		status        TEXT NOT NULL DEFAULT 'pending',
		urls          TEXT[] NOT NULL,
		total_urls    INTEGER NOT NULL DEFAULT 0,
		succeeded     INTEGER NOT NULL DEFAULT 0,
		failed        INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		started_at    TIMESTAMPTZ,
		completed_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scrape_jobs_status_created
		ON scrape_jobs (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS scrape_results (
		id            UUID PRIMARY KEY,
		job_id        UUID NOT NULL REFERENCES scrape_jobs(id) ON DELETE CASCADE,
		url           TEXT NOT NULL,
		site          TEXT NOT NULL,
		product       JSONB,
		error_message TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scrape_results_job ON scrape_results (job_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS outbox_event (
		id             UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id   TEXT NOT NULL,
		event_type     TEXT NOT NULL,
		payload        JSONB NOT NULL,
		target_stream  TEXT NOT NULL,
		status         TEXT NOT NULL DEFAULT 'pending',
		retry_count    INTEGER NOT NULL DEFAULT 0,
		error_message  TEXT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processed_at   TIMESTAMPTZ,
		next_retry_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_event_pending
		ON outbox_event (status, next_retry_at, created_at)`,
}

// Migrate creates the job, result and outbox tables when they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
