package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/maltedev/product-import-scraper/internal/database"
	"github.com/maltedev/product-import-scraper/internal/fetcher"
	"github.com/maltedev/product-import-scraper/internal/jobs"
	"github.com/maltedev/product-import-scraper/internal/parser"
	"github.com/maltedev/product-import-scraper/internal/scraper"
)

const (
	maxRequestBody = 1 << 20

	pendingWarnThreshold    = 1000
	deadLetterFailThreshold = 100
)

// JobService is the part of jobs.Manager the handlers use.
type JobService interface {
	CreateJob(ctx context.Context, urls []string) (*jobs.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*jobs.Job, error)
	ListJobs(ctx context.Context, limit int) ([]*jobs.Job, error)
	GetResults(ctx context.Context, jobID uuid.UUID) ([]*jobs.Result, error)
	GetStats(ctx context.Context) (*jobs.Stats, error)
}

type OutboxStats interface {
	Stats(ctx context.Context) (database.RelayStats, error)
}

type Handlers struct {
	scraper scraper.Scraper
	jobs    JobService
	outbox  OutboxStats
	logger  *slog.Logger
}

// NewHandlers wires the HTTP handlers. jobs and outbox may be nil when the
// service runs without Postgres; the job endpoints then answer 503.
func NewHandlers(s scraper.Scraper, jobService JobService, outbox OutboxStats, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		scraper: s,
		jobs:    jobService,
		outbox:  outbox,
		logger:  logger.With("component", "api"),
	}
}

// ScrapeRequest is the body of POST /api/v1/scraper/product
type ScrapeRequest struct {
	URL string `json:"url"`
}

type ScrapeMeta struct {
	URL           string   `json:"url"`
	Site          string   `json:"site"`
	FromCache     bool     `json:"from_cache"`
	MissingFields []string `json:"missing_fields"`
}

type ScrapeResponse struct {
	Data interface{} `json:"data"`
	Meta ScrapeMeta  `json:"meta"`
}

// ScrapeProduct extracts one product for the import form.
func (h *Handlers) ScrapeProduct(w http.ResponseWriter, r *http.Request) {
	var req ScrapeRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.scraper.Scrape(r.Context(), req.URL)
	if err != nil {
		h.respondScrapeError(w, req.URL, err)
		return
	}

	missing := result.Product.MissingFields()
	if missing == nil {
		missing = []string{}
	}

	h.respondJSON(w, http.StatusOK, ScrapeResponse{
		Data: result.Product,
		Meta: ScrapeMeta{
			URL:           result.URL,
			Site:          string(result.Site),
			FromCache:     result.FromCache,
			MissingFields: missing,
		},
	})
}

func (h *Handlers) respondScrapeError(w http.ResponseWriter, rawURL string, err error) {
	var fetchErr *fetcher.FetchError
	switch {
	case errors.Is(err, parser.ErrInvalidURL):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &fetchErr):
		status := http.StatusBadGateway
		if fetchErr.Timeout {
			status = http.StatusGatewayTimeout
		}
		h.logger.Warn("product fetch failed", "url", rawURL, "error", err)
		h.respondError(w, status, fetchErr.Error())
	default:
		h.logger.Error("product extraction failed", "url", rawURL, "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// CreateJobRequest represents a new import job request
type CreateJobRequest struct {
	URLs []string `json:"urls"`
}

type CreateJobResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	TotalURLs int    `json:"total_urls"`
	Message   string `json:"message"`
}

func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	if !h.jobsEnabled(w) {
		return
	}

	var req CreateJobRequest
	if !h.decode(w, r, &req) {
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), req.URLs)
	if err != nil {
		if errors.Is(err, jobs.ErrInvalidJob) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to create job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	h.respondJSON(w, http.StatusCreated, CreateJobResponse{
		JobID:     job.ID.String(),
		Status:    string(job.Status),
		TotalURLs: job.TotalURLs,
		Message:   "Job created successfully",
	})
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	if !h.jobsEnabled(w) {
		return
	}
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		h.respondJobError(w, "failed to get job", err)
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

// ListJobs takes an optional ?limit= query parameter.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	if !h.jobsEnabled(w) {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := h.jobs.ListJobs(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	h.respondJSON(w, http.StatusOK, list)
}

func (h *Handlers) GetJobResults(w http.ResponseWriter, r *http.Request) {
	if !h.jobsEnabled(w) {
		return
	}
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}

	results, err := h.jobs.GetResults(r.Context(), jobID)
	if err != nil {
		h.respondJobError(w, "failed to get results", err)
		return
	}

	h.respondJSON(w, http.StatusOK, results)
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	if !h.jobsEnabled(w) {
		return
	}

	stats, err := h.jobs.GetStats(r.Context())
	if err != nil {
		h.logger.Error("failed to get stats", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

// Health reports ok, or the outbox backlog when a relay is running.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{"status": "ok"}
	status := http.StatusOK

	if h.outbox != nil {
		stats, err := h.outbox.Stats(r.Context())
		switch {
		case err != nil:
			h.logger.Error("failed to read outbox stats", "error", err)
			health["status"] = "error"
			health["message"] = "outbox unavailable"
			status = http.StatusServiceUnavailable
		case stats.DeadLetter > deadLetterFailThreshold:
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		case stats.Pending > pendingWarnThreshold:
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if err == nil {
			health["outbox"] = stats
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) jobsEnabled(w http.ResponseWriter) bool {
	if h.jobs == nil {
		h.respondError(w, http.StatusServiceUnavailable, "import jobs are disabled")
		return false
	}
	return true
}

func (h *Handlers) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid job ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) respondJobError(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, jobs.ErrJobNotFound) {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	h.logger.Error(msg, "error", err)
	h.respondError(w, http.StatusInternalServerError, msg)
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
