package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/product-import-scraper/internal/models"
)

// Page is a fetched product page prepared for extraction. A Page belongs to a
// single extraction call and must not be shared between goroutines.
type Page struct {
	Doc  *goquery.Document
	HTML string
	URL  *url.URL

	ldNodes  []interface{}
	ldParsed bool
	text     string
	textDone bool
}

// NewPage parses html once so every probe of the fallback chains can reuse the
// same document.
func NewPage(html string, pageURL *url.URL) *Page {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(""))
	}

	if pageURL == nil {
		pageURL = &url.URL{}
	}

	return &Page{
		Doc:  doc,
		HTML: html,
		URL:  pageURL,
	}
}

// Partial is what a single extractor could find on a page. Empty strings and nil
// pointers mean "not found"; Assemble turns it into the final record.
type Partial struct {
	Name        string
	Description string
	Price       float64
	Currency    string
	Images      []string
	Brand       string
	SKU         string
	Category    string
	Stock       *int
	Weight      *float64
	Dimensions  *models.Dimensions
}

// fillFrom copies every field of other that p left empty.
func (p *Partial) fillFrom(other Partial) {
	if p.Name == "" {
		p.Name = other.Name
	}
	if p.Description == "" {
		p.Description = other.Description
	}
	if p.Price <= 0 {
		p.Price = other.Price
		p.Currency = other.Currency
	}
	if p.Currency == "" {
		p.Currency = other.Currency
	}
	if len(p.Images) == 0 {
		p.Images = other.Images
	}
	if p.Brand == "" {
		p.Brand = other.Brand
	}
	if p.SKU == "" {
		p.SKU = other.SKU
	}
	if p.Category == "" {
		p.Category = other.Category
	}
	if p.Stock == nil {
		p.Stock = other.Stock
	}
	if p.Weight == nil {
		p.Weight = other.Weight
	}
	if p.Dimensions == nil {
		p.Dimensions = other.Dimensions
	}
}

// Probe is one tier of a fallback chain. It returns the zero value when the tier
// produced nothing.
type Probe[T comparable] func(page *Page) T

// firstOf runs probes in order and returns the first non-zero result.
func firstOf[T comparable](page *Page, probes ...Probe[T]) T {
	var zero T
	for _, probe := range probes {
		if v := probe(page); v != zero {
			return v
		}
	}
	return zero
}

func metaContent(selectors ...string) Probe[string] {
	return func(page *Page) string {
		for _, selector := range selectors {
			content, _ := page.Doc.Find(selector).First().Attr("content")
			if content = cleanText(content); content != "" {
				return content
			}
		}
		return ""
	}
}

// selectorText returns the text (or content attribute for meta-like elements) of
// the first matching element that is not blank.
func selectorText(selectors ...string) Probe[string] {
	return func(page *Page) string {
		for _, selector := range selectors {
			var found string
			page.Doc.Find(selector).EachWithBreak(func(i int, s *goquery.Selection) bool {
				found = elementText(s)
				return found == ""
			})
			if found != "" {
				return found
			}
		}
		return ""
	}
}

func elementText(s *goquery.Selection) string {
	if content, ok := s.Attr("content"); ok && strings.TrimSpace(content) != "" {
		return cleanText(content)
	}
	return cleanText(s.Text())
}

// cleanText collapses runs of whitespace into single spaces.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// visibleText is the body text without script, style and noscript content.
func (p *Page) visibleText() string {
	if p.textDone {
		return p.text
	}
	p.textDone = true

	body := p.Doc.Find("body")
	if body.Length() == 0 {
		body = p.Doc.Selection
	}
	body = body.Clone()
	body.Find("script, style, noscript, template").Remove()
	p.text = cleanText(body.Text())
	return p.text
}
