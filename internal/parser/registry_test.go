package parser

import (
	"testing"

	"github.com/maltedev/product-import-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDispatch(t *testing.T) {
	registry := NewRegistry()
	html := `<head><meta property="og:title" content="Generic Title"></head>
		<body><h1 class="itemtit">Gmarket Title</h1><h2 class="prod-buy-header__title">Coupang Title</h2></body>`
	pageURL := mustParseURL(t, testPageURL)

	tests := []struct {
		site     models.SiteID
		expected string
	}{
		{models.SiteGmarket, "Gmarket Title"},
		{models.SiteCoupang, "Coupang Title"},
		{models.SiteGeneric, "Generic Title"},
		{models.SiteID("naver"), "Generic Title"},
		{models.SiteID(""), "Generic Title"},
	}

	for _, tt := range tests {
		t.Run(string(tt.site), func(t *testing.T) {
			assert.Equal(t, tt.expected, registry.Dispatch(tt.site, html, pageURL).Name)
		})
	}
}

func TestRegistryRegister(t *testing.T) {
	registry := NewRegistry()
	site := models.SiteID("11st")

	registry.Register(site, func(page *Page) Partial {
		return Partial{Name: "custom", Price: 500}
	})
	registry.Register(models.SiteID("ignored"), nil)

	got := registry.Dispatch(site, "<html></html>", mustParseURL(t, testPageURL))
	assert.Equal(t, "custom", got.Name)
	assert.Equal(t, float64(500), got.Price)

	sites := registry.Sites()
	assert.ElementsMatch(t, []models.SiteID{
		models.SiteGeneric, models.SiteGmarket, models.SiteCoupang, site,
	}, sites)
	assert.IsIncreasing(t, sites)
}

func TestRegistryExtractAssembles(t *testing.T) {
	registry := NewRegistry()
	html := `<head><meta property="og:title" content="Foo"><meta property="og:image" content="/a.jpg"></head><body></body>`

	product := registry.Extract(models.SiteGeneric, html, mustParseURL(t, "https://site.com/p/1"))

	require.NotNil(t, product)
	assert.Equal(t, "Foo", product.Name)
	assert.Equal(t, []string{"https://site.com/a.jpg"}, product.Images)
	assert.Equal(t, float64(0), product.Price)
	assert.Equal(t, models.DefaultCurrency, product.Currency)
	assert.Nil(t, product.SKU)
}

func TestRegistryDispatchNilURL(t *testing.T) {
	registry := NewRegistry()

	assert.NotPanics(t, func() {
		got := registry.Dispatch(models.SiteGeneric, `<meta property="og:image" content="/a.jpg">`, nil)
		assert.Empty(t, got.Images)
	})
}
