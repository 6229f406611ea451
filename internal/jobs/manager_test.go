package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/product-import-scraper/internal/fetcher"
	"github.com/maltedev/product-import-scraper/internal/models"
	"github.com/maltedev/product-import-scraper/internal/parser"
	"github.com/maltedev/product-import-scraper/internal/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateJob(ctx context.Context, job *Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockStore) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Job), args.Error(1)
}

func (m *MockStore) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Job), args.Error(1)
}

func (m *MockStore) GetResults(ctx context.Context, jobID uuid.UUID) ([]*Result, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Result), args.Error(1)
}

func (m *MockStore) ClaimNextJob(ctx context.Context, staleBefore time.Time) (*Job, error) {
	args := m.Called(ctx, staleBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Job), args.Error(1)
}

func (m *MockStore) SaveResult(ctx context.Context, result *Result) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *MockStore) CompleteJob(ctx context.Context, id uuid.UUID, jobErr error) error {
	args := m.Called(ctx, id, jobErr)
	return args.Error(0)
}

func (m *MockStore) GetStats(ctx context.Context) (*Stats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Stats), args.Error(1)
}

// fakeScraper answers from a map keyed by URL. Unknown URLs get a 404.
type fakeScraper struct {
	mu       sync.Mutex
	products map[string]*models.ScrapedProduct
	errs     map[string]error
	calls    []string
}

func (f *fakeScraper) Scrape(ctx context.Context, rawURL string) (*scraper.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rawURL)
	f.mu.Unlock()

	if err, ok := f.errs[rawURL]; ok {
		return nil, err
	}
	if p, ok := f.products[rawURL]; ok {
		return &scraper.Result{URL: rawURL, Site: models.SiteGeneric, Product: p}, nil
	}
	return nil, &fetcher.FetchError{URL: rawURL, Reason: "unexpected status", StatusCode: 404}
}

type fakeLimiter struct {
	mu        sync.Mutex
	waits     map[string]int
	errors    map[string]int
	successes map[string]int
}

func newFakeLimiter() *fakeLimiter {
	return &fakeLimiter{waits: map[string]int{}, errors: map[string]int{}, successes: map[string]int{}}
}

func (f *fakeLimiter) Wait(ctx context.Context, host string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits[host]++
	return ctx.Err()
}

func (f *fakeLimiter) RecordSuccess(host string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes[host]++
}

func (f *fakeLimiter) RecordError(host string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[host]++
}

func newTestManager(store Store, s scraper.Scraper, limiter Limiter) *Manager {
	return NewManager(store, s, limiter, Config{Workers: 2, MaxURLsPerJob: 3}, nil)
}

func TestCreateJob(t *testing.T) {
	ctx := context.Background()

	t.Run("trims and de-duplicates urls", func(t *testing.T) {
		store := new(MockStore)
		store.On("CreateJob", ctx, mock.AnythingOfType("*jobs.Job")).Return(nil)

		job, err := newTestManager(store, &fakeScraper{}, newFakeLimiter()).CreateJob(ctx, []string{
			" https://shop.example.com/p/1 ",
			"",
			"https://shop.example.com/p/1",
			"https://item.gmarket.co.kr/Item?goodscode=7",
		})
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, job.ID)
		assert.Equal(t, StatusPending, job.Status)
		assert.Equal(t, []string{
			"https://shop.example.com/p/1",
			"https://item.gmarket.co.kr/Item?goodscode=7",
		}, job.URLs)
		assert.Equal(t, 2, job.TotalURLs)
		assert.False(t, job.CreatedAt.IsZero())
		store.AssertExpectations(t)
	})

	invalid := []struct {
		name string
		urls []string
	}{
		{"no urls", nil},
		{"only blanks", []string{" ", ""}},
		{"malformed url", []string{"https://shop.example.com/p/1", "ftp://shop.example.com/p/2"}},
		{"relative url", []string{"/p/1"}},
		{"too many urls", []string{
			"https://shop.example.com/p/1",
			"https://shop.example.com/p/2",
			"https://shop.example.com/p/3",
			"https://shop.example.com/p/4",
		}},
	}

	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			store := new(MockStore)

			_, err := newTestManager(store, &fakeScraper{}, newFakeLimiter()).CreateJob(ctx, tc.urls)
			assert.ErrorIs(t, err, ErrInvalidJob)
			store.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything)
		})
	}

	t.Run("store failure", func(t *testing.T) {
		store := new(MockStore)
		store.On("CreateJob", ctx, mock.Anything).Return(errors.New("db down"))

		_, err := newTestManager(store, &fakeScraper{}, newFakeLimiter()).CreateJob(ctx, []string{"https://shop.example.com/p/1"})
		assert.EqualError(t, err, "db down")
	})
}

func TestListJobsClampsLimit(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	store.On("ListJobs", ctx, defaultListLimit).Return([]*Job{}, nil).Once()
	store.On("ListJobs", ctx, maxListLimit).Return([]*Job{}, nil).Once()
	store.On("ListJobs", ctx, 5).Return([]*Job{}, nil).Once()

	m := newTestManager(store, &fakeScraper{}, newFakeLimiter())
	for _, limit := range []int{0, 1000, 5} {
		_, err := m.ListJobs(ctx, limit)
		require.NoError(t, err)
	}
	store.AssertExpectations(t)
}

func TestGetResults(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	t.Run("unknown job", func(t *testing.T) {
		store := new(MockStore)
		store.On("GetJob", ctx, id).Return(nil, ErrJobNotFound)

		_, err := newTestManager(store, &fakeScraper{}, newFakeLimiter()).GetResults(ctx, id)
		assert.ErrorIs(t, err, ErrJobNotFound)
		store.AssertNotCalled(t, "GetResults", mock.Anything, mock.Anything)
	})

	t.Run("known job", func(t *testing.T) {
		store := new(MockStore)
		results := []*Result{{JobID: id, URL: "https://shop.example.com/p/1"}}
		store.On("GetJob", ctx, id).Return(&Job{ID: id}, nil)
		store.On("GetResults", ctx, id).Return(results, nil)

		got, err := newTestManager(store, &fakeScraper{}, newFakeLimiter()).GetResults(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, results, got)
	})
}

// savedResults collects SaveResult calls, which arrive from several goroutines.
type savedResults struct {
	mu      sync.Mutex
	results map[string]*Result
}

func (s *savedResults) record(args mock.Arguments) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := args.Get(1).(*Result)
	s.results[r.URL] = r
}

func TestProcessNextJob(t *testing.T) {
	ctx := context.Background()
	job := &Job{
		ID:     uuid.New(),
		Status: StatusRunning,
		URLs: []string{
			"https://shop.example.com/p/1",
			"https://shop.example.com/p/2",
			"https://other.example.com/p/3",
			"https://other.example.com/p/4",
		},
		TotalURLs: 4,
	}

	mug := &models.ScrapedProduct{Name: "Mug", Price: 12000, Currency: "KRW", Images: []string{}}
	s := &fakeScraper{
		products: map[string]*models.ScrapedProduct{
			"https://shop.example.com/p/1": mug,
			"https://shop.example.com/p/2": mug,
		},
		errs: map[string]error{
			"https://other.example.com/p/4": fmt.Errorf("%w: nil map write", scraper.ErrInternal),
		},
	}
	limiter := newFakeLimiter()

	saved := &savedResults{results: map[string]*Result{}}
	store := new(MockStore)
	store.On("ClaimNextJob", ctx, mock.AnythingOfType("time.Time")).Return(job, nil).Once()
	store.On("SaveResult", mock.Anything, mock.AnythingOfType("*jobs.Result")).Run(saved.record).Return(nil)
	store.On("CompleteJob", mock.Anything, job.ID, nil).Return(nil).Once()

	found := newTestManager(store, s, limiter).processNextJob(ctx)
	require.True(t, found)

	require.Len(t, saved.results, 4)
	assert.Equal(t, mug, saved.results["https://shop.example.com/p/1"].Product)
	assert.Empty(t, saved.results["https://shop.example.com/p/1"].Error)

	notFound := saved.results["https://other.example.com/p/3"]
	assert.Nil(t, notFound.Product)
	assert.Contains(t, notFound.Error, "404")

	internal := saved.results["https://other.example.com/p/4"]
	assert.Equal(t, "internal error", internal.Error)

	assert.Equal(t, 2, limiter.waits["shop.example.com"])
	assert.Equal(t, 2, limiter.waits["other.example.com"])
	assert.Equal(t, 2, limiter.successes["shop.example.com"])
	assert.Equal(t, 1, limiter.errors["other.example.com"], "only fetch failures slow a host down")

	store.AssertExpectations(t)
}

func TestProcessNextJobNoWork(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	store.On("ClaimNextJob", ctx, mock.AnythingOfType("time.Time")).Return(nil, ErrNoPendingJob)

	assert.False(t, newTestManager(store, &fakeScraper{}, newFakeLimiter()).processNextJob(ctx))
	store.AssertNotCalled(t, "CompleteJob", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessNextJobStoreFailureFailsJob(t *testing.T) {
	ctx := context.Background()
	job := &Job{ID: uuid.New(), URLs: []string{"https://shop.example.com/p/1"}, TotalURLs: 1}

	s := &fakeScraper{products: map[string]*models.ScrapedProduct{
		"https://shop.example.com/p/1": {Name: "Mug"},
	}}

	store := new(MockStore)
	store.On("ClaimNextJob", ctx, mock.AnythingOfType("time.Time")).Return(job, nil)
	store.On("SaveResult", mock.Anything, mock.Anything).Return(errors.New("connection reset"))
	store.On("CompleteJob", mock.Anything, job.ID, mock.MatchedBy(func(err error) bool {
		return err != nil
	})).Return(nil).Once()

	require.True(t, newTestManager(store, s, newFakeLimiter()).processNextJob(ctx))
	store.AssertExpectations(t)
}

func TestProcessNextJobCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := new(MockStore)
	assert.False(t, newTestManager(store, &fakeScraper{}, newFakeLimiter()).processNextJob(ctx))
	store.AssertNotCalled(t, "ClaimNextJob", mock.Anything, mock.Anything)
}

func TestProcessNextJobResumesAbandonedJob(t *testing.T) {
	ctx := context.Background()
	job := &Job{
		ID:        uuid.New(),
		Status:    StatusRunning,
		URLs:      []string{"https://shop.example.com/p/1", "https://shop.example.com/p/2"},
		TotalURLs: 2,
		Succeeded: 1,
	}

	s := &fakeScraper{products: map[string]*models.ScrapedProduct{
		"https://shop.example.com/p/1": {Name: "Mug"},
		"https://shop.example.com/p/2": {Name: "Cup"},
	}}

	saved := &savedResults{results: map[string]*Result{}}
	store := new(MockStore)
	store.On("ClaimNextJob", ctx, mock.AnythingOfType("time.Time")).Return(job, nil).Once()
	store.On("GetResults", mock.Anything, job.ID).Return([]*Result{
		{JobID: job.ID, URL: "https://shop.example.com/p/1", Product: &models.ScrapedProduct{Name: "Mug"}},
	}, nil).Once()
	store.On("SaveResult", mock.Anything, mock.AnythingOfType("*jobs.Result")).Run(saved.record).Return(nil)
	store.On("CompleteJob", mock.Anything, job.ID, nil).Return(nil).Once()

	require.True(t, newTestManager(store, s, newFakeLimiter()).processNextJob(ctx))

	assert.Equal(t, []string{"https://shop.example.com/p/2"}, s.calls)
	require.Len(t, saved.results, 1)
	assert.Equal(t, "Cup", saved.results["https://shop.example.com/p/2"].Product.Name)
	store.AssertExpectations(t)
}

func TestProcessNextJobClaimsWithStaleCutoff(t *testing.T) {
	ctx := context.Background()
	m := NewManager(new(MockStore), &fakeScraper{}, newFakeLimiter(), Config{JobTimeout: 10 * time.Minute}, nil)

	var cutoff time.Time
	store := m.store.(*MockStore)
	store.On("ClaimNextJob", ctx, mock.AnythingOfType("time.Time")).
		Run(func(args mock.Arguments) { cutoff = args.Get(1).(time.Time) }).
		Return(nil, ErrNoPendingJob)

	before := time.Now()
	assert.False(t, m.processNextJob(ctx))

	expected := before.Add(-(10*time.Minute + completeTimeout + staleGrace))
	assert.WithinDuration(t, expected, cutoff, time.Second)
}

func TestResultError(t *testing.T) {
	assert.Equal(t, "internal error", resultError(fmt.Errorf("%w: boom", scraper.ErrInternal)))

	_, err := parser.ParseProductURL("nope")
	assert.Equal(t, err.Error(), resultError(err))
}
