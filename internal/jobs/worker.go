package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maltedev/product-import-scraper/internal/fetcher"
	"github.com/maltedev/product-import-scraper/internal/metrics"
	"github.com/maltedev/product-import-scraper/internal/models"
	"github.com/maltedev/product-import-scraper/internal/parser"
	"github.com/maltedev/product-import-scraper/internal/scraper"
	"golang.org/x/sync/errgroup"
)

const (
	completeTimeout = 10 * time.Second
	// staleGrace is added on top of the job timeout before another worker
	// may take over a running job.
	staleGrace = time.Minute
)

// StartWorker polls for pending jobs until ctx is cancelled. Each tick drains
// the queue one job at a time.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started",
		"workers", m.cfg.Workers,
		"interval", m.cfg.PollInterval)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		for m.processNextJob(ctx) {
		}

		select {
		case <-ctx.Done():
			m.logger.Info("job worker stopping")
			return
		case <-ticker.C:
		}
	}
}

// processNextJob claims and runs one job. It reports whether a job was found.
func (m *Manager) processNextJob(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	job, err := m.store.ClaimNextJob(ctx, time.Now().Add(-m.staleAfter()))
	if err != nil {
		if !errors.Is(err, ErrNoPendingJob) {
			m.logger.Error("failed to claim job", "error", err)
		}
		return false
	}

	logger := m.logger.With("job_id", job.ID)
	if job.Succeeded+job.Failed > 0 {
		logger.Warn("resuming abandoned job",
			"succeeded", job.Succeeded,
			"failed", job.Failed)
	}
	logger.Info("processing job", "urls", len(job.URLs))

	jobErr := m.processJob(ctx, job)
	if jobErr != nil {
		logger.Error("job failed", "error", jobErr)
	}

	// the job row must be closed even when ctx was cancelled by shutdown
	completeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), completeTimeout)
	defer cancel()
	if err := m.store.CompleteJob(completeCtx, job.ID, jobErr); err != nil {
		logger.Error("failed to complete job", "error", err)
		return true
	}

	if jobErr == nil {
		logger.Info("job completed")
	}
	return true
}

// processJob scrapes every URL of the job with at most cfg.Workers in flight.
// Per-URL failures are stored as results. Only a store failure or the job
// deadline fails the job.
func (m *Manager) processJob(ctx context.Context, job *Job) error {
	metrics.JobsRunning.Inc()
	defer metrics.JobsRunning.Dec()

	jobCtx, cancel := context.WithTimeout(ctx, m.cfg.JobTimeout)
	defer cancel()

	urls, err := m.remainingURLs(jobCtx, job)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(jobCtx)
	g.SetLimit(m.cfg.Workers)

	for _, rawURL := range urls {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return m.processURL(gctx, job, rawURL)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if err := jobCtx.Err(); err != nil {
		return fmt.Errorf("job did not finish: %w", err)
	}
	return nil
}

// staleAfter is how long a job may stay running before it counts as abandoned.
// A live worker gives up after JobTimeout and closes the row within
// completeTimeout.
func (m *Manager) staleAfter() time.Duration {
	return m.cfg.JobTimeout + completeTimeout + staleGrace
}

// remainingURLs drops URLs that already have a result, so a reclaimed job
// does not store or publish them twice.
func (m *Manager) remainingURLs(ctx context.Context, job *Job) ([]string, error) {
	if job.Succeeded+job.Failed == 0 {
		return job.URLs, nil
	}

	results, err := m.store.GetResults(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load previous results: %w", err)
	}

	done := make(map[string]bool, len(results))
	for _, r := range results {
		done[r.URL] = true
	}

	remaining := make([]string, 0, len(job.URLs))
	for _, u := range job.URLs {
		if !done[u] {
			remaining = append(remaining, u)
		}
	}
	return remaining, nil
}

func (m *Manager) processURL(ctx context.Context, job *Job, rawURL string) error {
	result := &Result{JobID: job.ID, URL: rawURL, Site: models.SiteGeneric}

	pageURL, err := parser.ParseProductURL(rawURL)
	if err != nil {
		result.Error = err.Error()
		return m.saveResult(ctx, result)
	}
	host := pageURL.Hostname()
	result.Site = parser.ClassifyURL(pageURL)

	if err := m.limiter.Wait(ctx, host); err != nil {
		return err
	}

	scraped, err := m.scraper.Scrape(ctx, rawURL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var fetchErr *fetcher.FetchError
		if errors.As(err, &fetchErr) {
			m.limiter.RecordError(host)
		}
		result.Error = resultError(err)
		m.logger.Warn("url failed", "job_id", job.ID, "url", rawURL, "error", err)
		return m.saveResult(ctx, result)
	}

	m.limiter.RecordSuccess(host)
	result.URL = scraped.URL
	result.Site = scraped.Site
	result.Product = scraped.Product
	return m.saveResult(ctx, result)
}

func (m *Manager) saveResult(ctx context.Context, result *Result) error {
	status := "succeeded"
	if result.Product == nil {
		status = "failed"
	}
	metrics.JobURLs.WithLabelValues(status).Inc()

	if err := m.store.SaveResult(ctx, result); err != nil {
		return fmt.Errorf("failed to save result for %s: %w", result.URL, err)
	}
	return nil
}

// resultError is what a reviewer sees for a failed URL. Internal causes stay
// in the log.
func resultError(err error) string {
	if errors.Is(err, scraper.ErrInternal) {
		return "internal error"
	}
	return err.Error()
}
