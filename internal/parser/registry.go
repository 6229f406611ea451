package parser

import (
	"net/url"
	"sort"
	"sync"

	"github.com/maltedev/product-import-scraper/internal/models"
)

// Extractor derives whatever product fields it can from a page.
type Extractor func(page *Page) Partial

// Registry maps site identifiers to extraction strategies. The generic strategy
// is always registered, so Dispatch never fails for an unknown site.
type Registry struct {
	mu         sync.RWMutex
	extractors map[models.SiteID]Extractor
}

// NewRegistry returns a registry holding the generic, Gmarket and Coupang
// strategies.
func NewRegistry() *Registry {
	r := &Registry{
		extractors: make(map[models.SiteID]Extractor),
	}
	r.Register(models.SiteGeneric, ExtractGeneric)
	r.Register(models.SiteGmarket, ExtractGmarket)
	r.Register(models.SiteCoupang, ExtractCoupang)
	return r
}

// Register adds or replaces the strategy for site. A nil extractor is ignored.
func (r *Registry) Register(site models.SiteID, extractor Extractor) {
	if extractor == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[site] = extractor
}

// Lookup returns the strategy for site, or the generic strategy.
func (r *Registry) Lookup(site models.SiteID) Extractor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if extractor, ok := r.extractors[site]; ok {
		return extractor
	}
	if extractor, ok := r.extractors[models.SiteGeneric]; ok {
		return extractor
	}
	return ExtractGeneric
}

// Sites lists the sites with a registered strategy, sorted by name.
func (r *Registry) Sites() []models.SiteID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sites := make([]models.SiteID, 0, len(r.extractors))
	for site := range r.extractors {
		sites = append(sites, site)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i] < sites[j] })
	return sites
}

// Dispatch parses html and runs the strategy registered for site.
func (r *Registry) Dispatch(site models.SiteID, html string, pageURL *url.URL) Partial {
	return r.Lookup(site)(NewPage(html, pageURL))
}

// Extract is Dispatch followed by Assemble.
func (r *Registry) Extract(site models.SiteID, html string, pageURL *url.URL) *models.ScrapedProduct {
	return Assemble(r.Dispatch(site, html, pageURL), pageURL)
}
