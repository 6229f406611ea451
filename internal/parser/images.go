package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// MaxImages caps the image list of a single product.
const MaxImages = 10

var imageSelectors = []string{
	`[itemprop="image"]`,
	".product-image img",
	".product-img img",
	".product-photo img",
	".product-gallery img",
	".gallery img",
	".thumbnail img",
	".thumb img",
	`[class*="product"] img`,
	`[class*="gallery"] img`,
	`[class*="thumb"] img`,
	`img[src*="product"]`,
	`img[alt*="product"]`,
}

// imageSourceAttrs is the order in which lazy-loading attributes are read.
var imageSourceAttrs = []string{"src", "data-src", "data-lazy-src", "data-original", "content"}

// imageSet is an ordered set of absolute image URLs, capped at MaxImages.
type imageSet struct {
	base *url.URL
	seen map[string]struct{}
	urls []string
}

func newImageSet(base *url.URL) *imageSet {
	return &imageSet{
		base: base,
		seen: make(map[string]struct{}),
	}
}

// Add normalizes candidate and keeps it unless it is empty, relative, a
// duplicate, an obvious logo or icon, or the set is already full.
func (s *imageSet) Add(candidate string) bool {
	if s.Full() {
		return false
	}

	normalized := NormalizeURL(candidate, s.base)
	if normalized == "" || !IsAbsoluteURL(normalized) || isDecorativeImage(normalized) {
		return false
	}

	if _, dup := s.seen[normalized]; dup {
		return false
	}

	s.seen[normalized] = struct{}{}
	s.urls = append(s.urls, normalized)
	return true
}

func (s *imageSet) Full() bool {
	return len(s.urls) >= MaxImages
}

func (s *imageSet) Len() int {
	return len(s.urls)
}

func (s *imageSet) List() []string {
	out := make([]string, len(s.urls))
	copy(out, s.urls)
	return out
}

// addSelection reads the first non-empty source attribute of every element.
func (s *imageSet) addSelection(sel *goquery.Selection) {
	sel.EachWithBreak(func(i int, el *goquery.Selection) bool {
		s.Add(imageSource(el))
		return !s.Full()
	})
}

func (s *imageSet) addSelectors(page *Page, selectors ...string) {
	for _, selector := range selectors {
		if s.Full() {
			return
		}
		s.addSelection(page.Doc.Find(selector))
	}
}

func imageSource(el *goquery.Selection) string {
	for _, attr := range imageSourceAttrs {
		if v, ok := el.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// isDecorativeImage filters site chrome like logos and icons by path.
func isDecorativeImage(raw string) bool {
	path := raw
	if u, err := url.Parse(raw); err == nil {
		path = u.Path
	}
	path = strings.ToLower(path)
	return strings.Contains(path, "logo") || strings.Contains(path, "icon")
}

// collectImages runs the generic image chain: Open Graph first, then the
// product/gallery selectors, then images declared in structured data.
func collectImages(page *Page) []string {
	set := newImageSet(page.URL)

	set.addSelection(page.Doc.Find(`meta[property="og:image"], meta[property="og:image:url"], meta[name="og:image"]`))
	set.addSelectors(page, imageSelectors...)

	for _, img := range ldImages(page) {
		set.Add(img)
	}

	return set.List()
}
