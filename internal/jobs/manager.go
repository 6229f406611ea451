package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/product-import-scraper/internal/parser"
	"github.com/maltedev/product-import-scraper/internal/ratelimit"
	"github.com/maltedev/product-import-scraper/internal/scraper"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// Limiter throttles per host and adapts to how the host responds.
type Limiter interface {
	ratelimit.Limiter
	RecordSuccess(host string)
	RecordError(host string)
}

type Config struct {
	Workers       int
	MaxURLsPerJob int
	PollInterval  time.Duration
	JobTimeout    time.Duration
}

type Manager struct {
	store   Store
	scraper scraper.Scraper
	limiter Limiter
	cfg     Config
	logger  *slog.Logger
}

func NewManager(store Store, s scraper.Scraper, limiter Limiter, cfg Config, logger *slog.Logger) *Manager {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxURLsPerJob < 1 {
		cfg.MaxURLsPerJob = 100
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Minute
	}
	if limiter == nil {
		limiter = ratelimit.NewHostLimiter(1, 1)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		store:   store,
		scraper: s,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger.With("component", "job_manager"),
	}
}

// CreateJob validates and de-duplicates urls and queues them as one job. A
// single malformed URL rejects the whole job.
func (m *Manager) CreateJob(ctx context.Context, urls []string) (*Job, error) {
	seen := make(map[string]bool, len(urls))
	cleaned := make([]string, 0, len(urls))

	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		pageURL, err := parser.ParseProductURL(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a product URL", ErrInvalidJob, raw)
		}
		key := pageURL.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		cleaned = append(cleaned, key)
	}

	if len(cleaned) == 0 {
		return nil, fmt.Errorf("%w: no urls given", ErrInvalidJob)
	}
	if len(cleaned) > m.cfg.MaxURLsPerJob {
		return nil, fmt.Errorf("%w: %d urls exceeds the limit of %d", ErrInvalidJob, len(cleaned), m.cfg.MaxURLsPerJob)
	}

	job := &Job{
		ID:        uuid.New(),
		Status:    StatusPending,
		URLs:      cleaned,
		TotalURLs: len(cleaned),
		CreatedAt: time.Now(),
	}

	if err := m.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	m.logger.Info("job created", "id", job.ID, "urls", job.TotalURLs)
	return job, nil
}

func (m *Manager) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	return m.store.GetJob(ctx, id)
}

// ListJobs returns the newest jobs first. limit is clamped to 1..100; zero
// means the default page size.
func (m *Manager) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	return m.store.ListJobs(ctx, limit)
}

func (m *Manager) GetResults(ctx context.Context, jobID uuid.UUID) ([]*Result, error) {
	if _, err := m.store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return m.store.GetResults(ctx, jobID)
}

func (m *Manager) GetStats(ctx context.Context) (*Stats, error) {
	return m.store.GetStats(ctx)
}
