package scraper

import (
	"context"
	"errors"

	"github.com/maltedev/product-import-scraper/internal/models"
)

var (
	// ErrInternal wraps anything that went wrong after the page was fetched.
	// The cause is logged, never returned to API clients.
	ErrInternal = errors.New("internal extraction error")
)

// Scraper extracts one product from a URL.
type Scraper interface {
	Scrape(ctx context.Context, rawURL string) (*Result, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// Cache stores finished records by product URL. Get returns cache.ErrMiss when
// there is no usable entry.
type Cache interface {
	Get(ctx context.Context, rawURL string) (*models.ScrapedProduct, error)
	Set(ctx context.Context, rawURL string, product *models.ScrapedProduct) error
}

type Result struct {
	URL       string                 `json:"url"`
	Site      models.SiteID          `json:"site"`
	Product   *models.ScrapedProduct `json:"product"`
	FromCache bool                   `json:"from_cache"`
}
