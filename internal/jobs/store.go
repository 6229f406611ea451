package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/product-import-scraper/internal/database"
	"github.com/maltedev/product-import-scraper/internal/events"
)

// Store persists jobs and their per-URL results.
type Store interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	GetResults(ctx context.Context, jobID uuid.UUID) ([]*Result, error)
	// ClaimNextJob moves the oldest pending job to running. A running job
	// started before staleBefore is claimed again; its owner is assumed dead.
	// A zero staleBefore disables reclaiming. It returns ErrNoPendingJob
	// when there is nothing to do.
	ClaimNextJob(ctx context.Context, staleBefore time.Time) (*Job, error)
	SaveResult(ctx context.Context, result *Result) error
	CompleteJob(ctx context.Context, id uuid.UUID, jobErr error) error
	GetStats(ctx context.Context) (*Stats, error)
}

// EventPublisher writes events inside a store transaction.
type EventPublisher interface {
	PublishProductScrapedTx(ctx context.Context, tx pgx.Tx, payload *events.ProductScrapedPayload) error
}

type PgStore struct {
	db        *database.DB
	publisher EventPublisher
}

// NewPgStore returns a Postgres store. With a nil publisher results are saved
// without emitting events.
func NewPgStore(db *database.DB, publisher EventPublisher) *PgStore {
	return &PgStore{db: db, publisher: publisher}
}

const jobColumns = `id, status, urls, total_urls, succeeded, failed,
	created_at, started_at, completed_at, COALESCE(error_message, '')`

func scanJob(row pgx.Row) (*Job, error) {
	job := &Job{}
	err := row.Scan(
		&job.ID, &job.Status, &job.URLs, &job.TotalURLs, &job.Succeeded, &job.Failed,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt, &job.Error,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *PgStore) CreateJob(ctx context.Context, job *Job) error {
	query := `
		INSERT INTO scrape_jobs (id, status, urls, total_urls, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.Exec(ctx, query, job.ID, job.Status, job.URLs, job.TotalURLs, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *PgStore) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scrape_jobs WHERE id = $1`

	job, err := scanJob(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *PgStore) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scrape_jobs ORDER BY created_at DESC LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return jobs, nil
}

func (s *PgStore) GetResults(ctx context.Context, jobID uuid.UUID) ([]*Result, error) {
	query := `
		SELECT id, job_id, url, site, product, COALESCE(error_message, ''), created_at
		FROM scrape_results
		WHERE job_id = $1
		ORDER BY created_at, url`

	rows, err := s.db.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	defer rows.Close()

	results := []*Result{}
	for rows.Next() {
		r := &Result{}
		var product []byte
		if err := rows.Scan(&r.ID, &r.JobID, &r.URL, &r.Site, &product, &r.Error, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if len(product) > 0 {
			if err := json.Unmarshal(product, &r.Product); err != nil {
				return nil, fmt.Errorf("failed to decode product: %w", err)
			}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}
	return results, nil
}

func (s *PgStore) ClaimNextJob(ctx context.Context, staleBefore time.Time) (*Job, error) {
	query := `
		UPDATE scrape_jobs
		SET status = $1, started_at = $2
		WHERE id = (
			SELECT id FROM scrape_jobs
			WHERE status = $3
			   OR (status = $1 AND $4::timestamptz IS NOT NULL AND started_at < $4)
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	var stale *time.Time
	if !staleBefore.IsZero() {
		stale = &staleBefore
	}

	job, err := scanJob(s.db.QueryRow(ctx, query, StatusRunning, time.Now(), StatusPending, stale))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoPendingJob
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return job, nil
}

// SaveResult stores the result, bumps the job counters and, for a successful
// extraction, writes a PRODUCT_SCRAPED event. All three commit together.
func (s *PgStore) SaveResult(ctx context.Context, result *Result) error {
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}

	var product []byte
	if result.Product != nil {
		data, err := json.Marshal(result.Product)
		if err != nil {
			return fmt.Errorf("failed to encode product: %w", err)
		}
		product = data
	}

	var errorMessage *string
	if result.Error != "" {
		errorMessage = &result.Error
	}

	return s.db.Transaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO scrape_results (id, job_id, url, site, product, error_message, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			result.ID, result.JobID, result.URL, string(result.Site), product, errorMessage, result.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert result: %w", err)
		}

		counter := "succeeded"
		if result.Product == nil {
			counter = "failed"
		}
		tag, err := tx.Exec(ctx,
			`UPDATE scrape_jobs SET `+counter+` = `+counter+` + 1 WHERE id = $1`, result.JobID)
		if err != nil {
			return fmt.Errorf("failed to update job progress: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrJobNotFound
		}

		if result.Product == nil || s.publisher == nil {
			return nil
		}
		return s.publisher.PublishProductScrapedTx(ctx, tx, &events.ProductScrapedPayload{
			JobID:   result.JobID.String(),
			URL:     result.URL,
			Site:    result.Site,
			Product: result.Product,
		})
	})
}

func (s *PgStore) CompleteJob(ctx context.Context, id uuid.UUID, jobErr error) error {
	status := StatusCompleted
	var errorMessage *string
	if jobErr != nil {
		status = StatusFailed
		msg := jobErr.Error()
		errorMessage = &msg
	}

	query := `
		UPDATE scrape_jobs
		SET status = $1, completed_at = $2, error_message = $3
		WHERE id = $4`

	tag, err := s.db.Exec(ctx, query, status, time.Now(), errorMessage, id)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PgStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'running'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COALESCE(SUM(succeeded + failed), 0),
			COALESCE(SUM(failed), 0)
		FROM scrape_jobs`

	err := s.db.QueryRow(ctx, query).Scan(
		&stats.TotalJobs, &stats.PendingJobs, &stats.RunningJobs,
		&stats.CompletedJobs, &stats.FailedJobs,
		&stats.TotalResults, &stats.FailedResults,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	if stats.TotalResults > 0 {
		stats.SuccessRate = float64(stats.TotalResults-stats.FailedResults) / float64(stats.TotalResults) * 100
	}
	return stats, nil
}
