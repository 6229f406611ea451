package parser

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/maltedev/product-import-scraper/internal/models"
)

var ErrInvalidURL = errors.New("invalid product URL")

// siteTable is matched in order by hostname containment.
var siteTable = []struct {
	host string
	site models.SiteID
}{
	{"gmarket.co.kr", models.SiteGmarket},
	{"coupang.com", models.SiteCoupang},
}

// ParseProductURL accepts only absolute http(s) URLs with a host.
func ParseProductURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidURL)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}

	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	u.Scheme = scheme
	return u, nil
}

// Classify maps a product URL to the strategy that should extract it.
func Classify(raw string) (models.SiteID, error) {
	u, err := ParseProductURL(raw)
	if err != nil {
		return "", err
	}
	return ClassifyURL(u), nil
}

func ClassifyURL(u *url.URL) models.SiteID {
	host := strings.ToLower(u.Hostname())
	for _, entry := range siteTable {
		if strings.Contains(host, entry.host) {
			return entry.site
		}
	}
	return models.SiteGeneric
}
