package parser

import (
	"fmt"
	"math"
	"testing"

	"github.com/maltedev/product-import-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleDefaults(t *testing.T) {
	product := Assemble(Partial{}, mustParseURL(t, testPageURL))

	require.NotNil(t, product)
	assert.Equal(t, "KRW", product.Currency)
	assert.Equal(t, float64(0), product.Price)
	assert.NotNil(t, product.Images)
	assert.Empty(t, product.Images)
	assert.Empty(t, product.Brand)
	assert.Nil(t, product.SKU)
	assert.Nil(t, product.Category)
	assert.Nil(t, product.Stock)
	assert.Nil(t, product.Weight)
	assert.Nil(t, product.Dimensions)
	assert.Equal(t, []string{"name", "price", "images", "description"}, product.MissingFields())
}

func TestAssembleRevalidatesImages(t *testing.T) {
	images := []string{
		"",
		"/img/1.jpg",
		"//cdn.example.com/2.jpg",
		"relative.jpg",
		"https://shop.example.com/img/1.jpg",
		"https://cdn.example.com/brand-logo.png",
		"javascript:alert(1)",
	}
	for i := 3; i < 20; i++ {
		images = append(images, fmt.Sprintf("https://cdn.example.com/%d.jpg", i))
	}

	product := Assemble(Partial{Images: images}, mustParseURL(t, testPageURL))

	require.Len(t, product.Images, MaxImages)
	assert.Equal(t, "https://shop.example.com/img/1.jpg", product.Images[0])
	assert.Equal(t, "https://cdn.example.com/2.jpg", product.Images[1])
	assert.Equal(t, "https://cdn.example.com/3.jpg", product.Images[2])
	for _, img := range product.Images {
		assert.True(t, IsAbsoluteURL(img))
		assert.NotContains(t, img, "logo")
	}
}

func TestAssembleFieldsAndBounds(t *testing.T) {
	stock := 4
	weight := 1.23456
	p := Partial{
		Name:        "  Steel   Kettle ",
		Description: "1.7L\n\tkettle",
		Price:       25000,
		Currency:    "USD",
		Brand:       " Hanil ",
		SKU:         " K-17 ",
		Category:    "  ",
		Stock:       &stock,
		Weight:      &weight,
		Dimensions:  &models.Dimensions{Length: 20, Width: 15, Height: 25},
	}

	product := Assemble(p, mustParseURL(t, testPageURL))

	assert.Equal(t, "Steel Kettle", product.Name)
	assert.Equal(t, "1.7L kettle", product.Description)
	assert.Equal(t, float64(25000), product.Price)
	assert.Equal(t, "USD", product.Currency)
	assert.Equal(t, "Hanil", product.Brand)
	require.NotNil(t, product.SKU)
	assert.Equal(t, "K-17", *product.SKU)
	assert.Nil(t, product.Category)
	require.NotNil(t, product.Stock)
	assert.Equal(t, 4, *product.Stock)
	require.NotNil(t, product.Weight)
	assert.Equal(t, 1.235, *product.Weight)
	require.NotNil(t, product.Dimensions)
	assert.Equal(t, models.Dimensions{Length: 20, Width: 15, Height: 25}, *product.Dimensions)

	// the record must not alias the partial
	stock = 99
	assert.Equal(t, 4, *product.Stock)
}

func TestAssembleDropsInvalidValues(t *testing.T) {
	negativeStock := -1
	nan := math.NaN()

	tests := []struct {
		name    string
		partial Partial
		check   func(t *testing.T, product *models.ScrapedProduct)
	}{
		{
			name:    "price above bound",
			partial: Partial{Price: 250_000_000},
			check: func(t *testing.T, product *models.ScrapedProduct) {
				assert.Equal(t, float64(0), product.Price)
			},
		},
		{
			name:    "negative price",
			partial: Partial{Price: -10},
			check: func(t *testing.T, product *models.ScrapedProduct) {
				assert.Equal(t, float64(0), product.Price)
			},
		},
		{
			name:    "negative stock",
			partial: Partial{Stock: &negativeStock},
			check: func(t *testing.T, product *models.ScrapedProduct) {
				assert.Nil(t, product.Stock)
			},
		},
		{
			name:    "nan weight",
			partial: Partial{Weight: &nan},
			check: func(t *testing.T, product *models.ScrapedProduct) {
				assert.Nil(t, product.Weight)
			},
		},
		{
			name:    "negative dimension",
			partial: Partial{Dimensions: &models.Dimensions{Length: -1, Width: 2, Height: 3}},
			check: func(t *testing.T, product *models.ScrapedProduct) {
				assert.Nil(t, product.Dimensions)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Assemble(tt.partial, mustParseURL(t, testPageURL)))
		})
	}
}
