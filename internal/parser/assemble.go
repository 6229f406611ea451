package parser

import (
	"math"
	"net/url"

	"github.com/maltedev/product-import-scraper/internal/models"
)

// Assemble turns an extractor's Partial into the canonical record. It does not
// trust the extractor: price is re-bounded, images are re-normalized and
// re-filtered, and out-of-range optionals are dropped.
func Assemble(p Partial, pageURL *url.URL) *models.ScrapedProduct {
	product := &models.ScrapedProduct{
		Name:        cleanText(p.Name),
		Description: cleanText(p.Description),
		Price:       boundPrice(p.Price),
		Currency:    cleanText(p.Currency),
		Brand:       cleanText(p.Brand),
		SKU:         optionalString(p.SKU),
		Category:    optionalString(p.Category),
	}

	if product.Currency == "" {
		product.Currency = models.DefaultCurrency
	}

	set := newImageSet(pageURL)
	for _, img := range p.Images {
		set.Add(img)
	}
	product.Images = set.List()

	if p.Stock != nil && *p.Stock >= 0 {
		stock := *p.Stock
		product.Stock = &stock
	}

	if p.Weight != nil && *p.Weight >= 0 && !math.IsInf(*p.Weight, 0) && !math.IsNaN(*p.Weight) {
		weight := math.Round(*p.Weight*1000) / 1000
		product.Weight = &weight
	}

	if p.Dimensions.IsValid() {
		dims := *p.Dimensions
		product.Dimensions = &dims
	}

	return product
}

func optionalString(s string) *string {
	s = cleanText(s)
	if s == "" {
		return nil
	}
	return &s
}
