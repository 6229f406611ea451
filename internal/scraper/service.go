package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/maltedev/product-import-scraper/internal/cache"
	"github.com/maltedev/product-import-scraper/internal/fetcher"
	"github.com/maltedev/product-import-scraper/internal/metrics"
	"github.com/maltedev/product-import-scraper/internal/models"
	"github.com/maltedev/product-import-scraper/internal/parser"
)

// Service runs the extraction pipeline: validate, classify, fetch, dispatch,
// assemble. It holds no per-request state and is safe for concurrent use.
type Service struct {
	fetcher  Fetcher
	registry *parser.Registry
	cache    Cache
	logger   *slog.Logger
}

type Option func(*Service)

// WithCache enables the result cache. A nil cache leaves it disabled.
func WithCache(c Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func WithRegistry(r *parser.Registry) Option {
	return func(s *Service) {
		if r != nil {
			s.registry = r
		}
	}
}

func NewService(f Fetcher, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		fetcher:  f,
		registry: parser.NewRegistry(),
		logger:   logger.With("component", "scraper"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrape extracts the product behind rawURL. Errors are parser.ErrInvalidURL,
// a *fetcher.FetchError, or ErrInternal. A page without recognisable product
// data is not an error: the record simply has empty fields.
func (s *Service) Scrape(ctx context.Context, rawURL string) (*Result, error) {
	pageURL, err := parser.ParseProductURL(rawURL)
	if err != nil {
		metrics.Extractions.WithLabelValues(string(models.SiteGeneric), metrics.OutcomeInvalidURL).Inc()
		return nil, err
	}

	site := parser.ClassifyURL(pageURL)
	key := pageURL.String()
	logger := s.logger.With("url", key, "site", site)

	if cached := s.fromCache(ctx, key, logger); cached != nil {
		metrics.Extractions.WithLabelValues(string(site), metrics.OutcomeSuccess).Inc()
		return &Result{URL: key, Site: site, Product: cached, FromCache: true}, nil
	}

	start := time.Now()
	html, err := s.fetcher.Fetch(ctx, key)
	metrics.FetchDuration.WithLabelValues(string(site)).Observe(time.Since(start).Seconds())
	if err != nil {
		s.recordFetchFailure(site, err)
		var fetchErr *fetcher.FetchError
		if errors.As(err, &fetchErr) {
			return nil, err
		}
		return nil, &fetcher.FetchError{URL: key, Reason: "request failed", Timeout: errors.Is(err, context.DeadlineExceeded), Err: err}
	}

	product, err := s.extract(site, html, pageURL)
	if err != nil {
		logger.Error("Extraction failed", "error", err)
		metrics.Extractions.WithLabelValues(string(site), metrics.OutcomeInternal).Inc()
		return nil, err
	}

	missing := product.MissingFields()
	for _, field := range missing {
		metrics.MissingFields.WithLabelValues(string(site), field).Inc()
	}
	metrics.Extractions.WithLabelValues(string(site), metrics.OutcomeSuccess).Inc()

	logger.Info("Product extracted",
		"name", product.Name,
		"price", product.Price,
		"currency", product.Currency,
		"images", len(product.Images),
		"missing", missing)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, product); err != nil {
			logger.Warn("Failed to cache result", "error", err)
		}
	}

	return &Result{URL: key, Site: site, Product: product}, nil
}

// extract runs dispatch and assembly, converting a panic in any heuristic into
// ErrInternal.
func (s *Service) extract(site models.SiteID, html string, pageURL *url.URL) (product *models.ScrapedProduct, err error) {
	defer func() {
		if r := recover(); r != nil {
			product = nil
			err = fmt.Errorf("%w: %v", ErrInternal, r)
		}
	}()

	product = s.registry.Extract(site, html, pageURL)
	if product == nil {
		return nil, fmt.Errorf("%w: extractor returned no record", ErrInternal)
	}
	return product, nil
}

func (s *Service) fromCache(ctx context.Context, key string, logger *slog.Logger) *models.ScrapedProduct {
	if s.cache == nil {
		return nil
	}

	product, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		logger.Debug("Cache hit")
		return product
	case errors.Is(err, cache.ErrMiss):
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	default:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		logger.Warn("Cache lookup failed", "error", err)
	}
	return nil
}

func (s *Service) recordFetchFailure(site models.SiteID, err error) {
	outcome := metrics.OutcomeFetchError
	var fetchErr *fetcher.FetchError
	if errors.As(err, &fetchErr) && fetchErr.Timeout {
		outcome = metrics.OutcomeTimeout
	}
	metrics.Extractions.WithLabelValues(string(site), outcome).Inc()
}
