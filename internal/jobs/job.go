package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/product-import-scraper/internal/models"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrNoPendingJob = errors.New("no pending job")
	ErrInvalidJob   = errors.New("invalid job")
)

// Job is a batch of product URLs imported in the background.
type Job struct {
	ID          uuid.UUID  `json:"id"`
	Status      Status     `json:"status"`
	URLs        []string   `json:"urls"`
	TotalURLs   int        `json:"total_urls"`
	Succeeded   int        `json:"succeeded"`
	Failed      int        `json:"failed"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Done reports how many URLs have a stored result.
func (j *Job) Done() int {
	return j.Succeeded + j.Failed
}

// Result is the outcome of one URL of a job. Exactly one of Product and Error
// is set.
type Result struct {
	ID        uuid.UUID              `json:"id"`
	JobID     uuid.UUID              `json:"job_id"`
	URL       string                 `json:"url"`
	Site      models.SiteID          `json:"site"`
	Product   *models.ScrapedProduct `json:"product,omitempty"`
	Error     string                 `json:"error,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

type Stats struct {
	TotalJobs     int     `json:"total_jobs"`
	PendingJobs   int     `json:"pending_jobs"`
	RunningJobs   int     `json:"running_jobs"`
	CompletedJobs int     `json:"completed_jobs"`
	FailedJobs    int     `json:"failed_jobs"`
	TotalResults  int     `json:"total_results"`
	FailedResults int     `json:"failed_results"`
	SuccessRate   float64 `json:"success_rate"`
}
