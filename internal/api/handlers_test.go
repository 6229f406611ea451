package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/maltedev/product-import-scraper/internal/database"
	"github.com/maltedev/product-import-scraper/internal/fetcher"
	"github.com/maltedev/product-import-scraper/internal/jobs"
	"github.com/maltedev/product-import-scraper/internal/models"
	"github.com/maltedev/product-import-scraper/internal/parser"
	"github.com/maltedev/product-import-scraper/internal/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockScraper struct {
	mock.Mock
}

func (m *MockScraper) Scrape(ctx context.Context, rawURL string) (*scraper.Result, error) {
	args := m.Called(ctx, rawURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scraper.Result), args.Error(1)
}

type MockJobService struct {
	mock.Mock
}

func (m *MockJobService) CreateJob(ctx context.Context, urls []string) (*jobs.Job, error) {
	args := m.Called(ctx, urls)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobs.Job), args.Error(1)
}

func (m *MockJobService) GetJob(ctx context.Context, id uuid.UUID) (*jobs.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobs.Job), args.Error(1)
}

func (m *MockJobService) ListJobs(ctx context.Context, limit int) ([]*jobs.Job, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*jobs.Job), args.Error(1)
}

func (m *MockJobService) GetResults(ctx context.Context, jobID uuid.UUID) ([]*jobs.Result, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*jobs.Result), args.Error(1)
}

func (m *MockJobService) GetStats(ctx context.Context) (*jobs.Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobs.Stats), args.Error(1)
}

type fakeOutbox struct {
	stats database.RelayStats
	err   error
}

func (f fakeOutbox) Stats(ctx context.Context) (database.RelayStats, error) {
	return f.stats, f.err
}

func serve(t *testing.T, h *Handlers, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	NewRouter(h, RouterConfig{}).ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestScrapeProduct(t *testing.T) {
	const productURL = "https://shop.example.com/p/1"

	t.Run("success", func(t *testing.T) {
		s := new(MockScraper)
		s.On("Scrape", mock.Anything, productURL).Return(&scraper.Result{
			URL:  productURL,
			Site: models.SiteGeneric,
			Product: &models.ScrapedProduct{
				Name: "Mug", Price: 18000, Currency: "KRW",
				Images: []string{"https://shop.example.com/mug.jpg"},
			},
		}, nil)

		rec := serve(t, NewHandlers(s, nil, nil, nil), http.MethodPost, "/api/v1/scraper/product", `{"url":"`+productURL+`"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		body := decodeBody(t, rec)
		data := body["data"].(map[string]interface{})
		assert.Equal(t, "Mug", data["name"])
		assert.Equal(t, float64(18000), data["price"])

		meta := body["meta"].(map[string]interface{})
		assert.Equal(t, "generic", meta["site"])
		assert.Equal(t, []interface{}{"description"}, meta["missing_fields"])
	})

	errorCases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{
			name:   "invalid url",
			err:    fmt.Errorf("%w: unsupported scheme %q", parser.ErrInvalidURL, "ftp"),
			status: http.StatusBadRequest,
		},
		{
			name:   "fetch error",
			err:    &fetcher.FetchError{URL: productURL, Reason: "unexpected status", StatusCode: 503},
			status: http.StatusBadGateway,
		},
		{
			name:   "fetch timeout",
			err:    &fetcher.FetchError{URL: productURL, Reason: "request timed out", Timeout: true},
			status: http.StatusGatewayTimeout,
		},
		{
			name:    "internal error is not leaked",
			err:     fmt.Errorf("%w: assignment to entry in nil map", scraper.ErrInternal),
			status:  http.StatusInternalServerError,
			message: "internal error",
		},
	}

	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			s := new(MockScraper)
			s.On("Scrape", mock.Anything, productURL).Return(nil, tc.err)

			rec := serve(t, NewHandlers(s, nil, nil, nil), http.MethodPost, "/api/v1/scraper/product", `{"url":"`+productURL+`"}`)

			assert.Equal(t, tc.status, rec.Code)
			body := decodeBody(t, rec)
			if tc.message != "" {
				assert.Equal(t, tc.message, body["error"])
			} else {
				assert.Equal(t, tc.err.Error(), body["error"])
			}
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		s := new(MockScraper)

		rec := serve(t, NewHandlers(s, nil, nil, nil), http.MethodPost, "/api/v1/scraper/product", `{"url":`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid request body", decodeBody(t, rec)["error"])
		s.AssertNotCalled(t, "Scrape", mock.Anything, mock.Anything)
	})

	t.Run("oversized body", func(t *testing.T) {
		s := new(MockScraper)
		big := `{"url":"` + strings.Repeat("a", maxRequestBody) + `"}`

		rec := serve(t, NewHandlers(s, nil, nil, nil), http.MethodPost, "/api/v1/scraper/product", big)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		s.AssertNotCalled(t, "Scrape", mock.Anything, mock.Anything)
	})
}

func TestJobEndpoints(t *testing.T) {
	id := uuid.New()
	job := &jobs.Job{ID: id, Status: jobs.StatusPending, URLs: []string{"https://shop.example.com/p/1"}, TotalURLs: 1}

	t.Run("create", func(t *testing.T) {
		svc := new(MockJobService)
		svc.On("CreateJob", mock.Anything, []string{"https://shop.example.com/p/1"}).Return(job, nil)

		rec := serve(t, NewHandlers(new(MockScraper), svc, nil, nil), http.MethodPost, "/api/v1/scraper/jobs",
			`{"urls":["https://shop.example.com/p/1"]}`)

		assert.Equal(t, http.StatusCreated, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, id.String(), body["job_id"])
		assert.Equal(t, "pending", body["status"])
		assert.Equal(t, float64(1), body["total_urls"])
	})

	t.Run("create rejects invalid urls", func(t *testing.T) {
		svc := new(MockJobService)
		svc.On("CreateJob", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("%w: no urls given", jobs.ErrInvalidJob))

		rec := serve(t, NewHandlers(new(MockScraper), svc, nil, nil), http.MethodPost, "/api/v1/scraper/jobs", `{"urls":[]}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeBody(t, rec)["error"], "no urls given")
	})

	t.Run("create store failure", func(t *testing.T) {
		svc := new(MockJobService)
		svc.On("CreateJob", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

		rec := serve(t, NewHandlers(new(MockScraper), svc, nil, nil), http.MethodPost, "/api/v1/scraper/jobs",
			`{"urls":["https://shop.example.com/p/1"]}`)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "failed to create job", decodeBody(t, rec)["error"])
	})

	t.Run("get", func(t *testing.T) {
		svc := new(MockJobService)
		svc.On("GetJob", mock.Anything, id).Return(job, nil)

		rec := serve(t, NewHandlers(new(MockScraper), svc, nil, nil), http.MethodGet, "/api/v1/scraper/jobs/"+id.String(), "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, id.String(), decodeBody(t, rec)["id"])
	})

	t.Run("get unknown", func(t *testing.T) {
		svc := new(MockJobService)
		svc.On("GetJob", mock.Anything, mock.Anything).Return(nil, jobs.ErrJobNotFound)

		rec := serve(t, NewHandlers(new(MockScraper), svc, nil, nil), http.MethodGet, "/api/v1/scraper/jobs/"+uuid.NewString(), "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("get with malformed id", func(t *testing.T) {
		svc := new(MockJobService)

		rec := serve(t, NewHandlers(new(MockScraper), svc, nil, nil), http.MethodGet, "/api/v1/scraper/jobs/not-a-uuid", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "GetJob", mock.Anything, mock.Anything)
	})

	t.Run("list with limit", func(t *testing.T) {
		svc := new(MockJobService)
		svc.On("ListJobs", mock.Anything, 10).Return([]*jobs.Job{job}, nil)

		rec := serve(t, NewHandlers(new(MockScraper), svc, nil, nil), http.MethodGet, "/api/v1/scraper/jobs?limit=10", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		var list []map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
		assert.Len(t, list, 1)
	})

	t.Run("list with bad limit", func(t *testing.T) {
		rec := serve(t, NewHandlers(new(MockScraper), new(MockJobService), nil, nil), http.MethodGet, "/api/v1/scraper/jobs?limit=abc", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("results", func(t *testing.T) {
		svc := new(MockJobService)
		svc.On("GetResults", mock.Anything, id).Return([]*jobs.Result{
			{JobID: id, URL: "https://shop.example.com/p/1", Site: models.SiteGeneric, Error: "request timed out"},
		}, nil)

		rec := serve(t, NewHandlers(new(MockScraper), svc, nil, nil), http.MethodGet, "/api/v1/scraper/jobs/"+id.String()+"/results", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		var results []map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
		require.Len(t, results, 1)
		assert.Equal(t, "request timed out", results[0]["error"])
		assert.NotContains(t, results[0], "product")
	})

	t.Run("stats", func(t *testing.T) {
		svc := new(MockJobService)
		svc.On("GetStats", mock.Anything).Return(&jobs.Stats{TotalJobs: 3, CompletedJobs: 2}, nil)

		rec := serve(t, NewHandlers(new(MockScraper), svc, nil, nil), http.MethodGet, "/api/v1/stats", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(3), decodeBody(t, rec)["total_jobs"])
	})

	t.Run("disabled", func(t *testing.T) {
		h := NewHandlers(new(MockScraper), nil, nil, nil)

		for _, path := range []string{"/api/v1/scraper/jobs", "/api/v1/stats", "/api/v1/scraper/jobs/" + id.String()} {
			rec := serve(t, h, http.MethodGet, path, "")
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		}
	})
}

func TestHealth(t *testing.T) {
	testCases := []struct {
		name   string
		outbox OutboxStats
		status int
		state  string
	}{
		{"no outbox", nil, http.StatusOK, "ok"},
		{"healthy outbox", fakeOutbox{stats: database.RelayStats{Pending: 3}}, http.StatusOK, "ok"},
		{"backlog", fakeOutbox{stats: database.RelayStats{Pending: 5000}}, http.StatusOK, "warning"},
		{"dead letters", fakeOutbox{stats: database.RelayStats{DeadLetter: 500}}, http.StatusServiceUnavailable, "error"},
		{"outbox unreachable", fakeOutbox{err: errors.New("db down")}, http.StatusServiceUnavailable, "error"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(t, NewHandlers(new(MockScraper), nil, tc.outbox, nil), http.MethodGet, "/health", "")

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.state, decodeBody(t, rec)["status"])
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/metrics", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	NewRouter(NewHandlers(new(MockScraper), nil, nil, nil), RouterConfig{}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
