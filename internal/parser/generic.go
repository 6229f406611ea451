package parser

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

// maxPriceTextLen skips price-looking containers whose text is too long to be a
// single price label.
const maxPriceTextLen = 120

type priceSelector struct {
	selector string
	attr     string
}

// priceSelectors are tried in order; for each, every matching element is
// checked until one yields a price within the magnitude bound.
var priceSelectors = []priceSelector{
	{selector: `[class*="price"]`},
	{selector: `[data-price]`, attr: "data-price"},
	{selector: `[itemprop="price"]`, attr: "content"},
	{selector: `[id*="price"]`},
	{selector: `[class*="Price"]`},
	{selector: `[class*="amount"]`},
	{selector: `[class*="가격"]`},
	{selector: `[class*="판매가"]`},
	{selector: `[class*="원"]`},
}

type textPricePattern struct {
	pattern  *regexp.Regexp
	currency string
}

// textPricePatterns scan the visible page text as the last price tier.
var textPricePatterns = []textPricePattern{
	{regexp.MustCompile(`(\d[\d,]*)\s*원`), "KRW"},
	{regexp.MustCompile(`\$\s*(\d[\d,]*(?:\.\d+)?)`), "USD"},
	{regexp.MustCompile(`₩\s*(\d[\d,]*)`), "KRW"},
	{regexp.MustCompile(`(?i)(\d[\d,]*)\s*KRW`), "KRW"},
}

// ExtractGeneric is the site-agnostic strategy. It never fails: every field
// falls back to its zero value when no tier finds anything.
func ExtractGeneric(page *Page) Partial {
	price := firstOf(page, genericPriceProbes()...)

	return Partial{
		Name:        firstOf(page, titleProbes()...),
		Description: firstOf(page, descriptionProbes()...),
		Price:       price.Amount,
		Currency:    price.Currency,
		Images:      collectImages(page),
		Brand:       firstOf(page, brandProbes()...),
		SKU:         firstOf(page, skuProbes()...),
		Category:    firstOf(page, categoryProbes()...),
		Stock:       extractStock(page),
		Weight:      extractWeight(page),
		Dimensions:  extractDimensions(page),
	}
}

func titleProbes() []Probe[string] {
	return []Probe[string]{
		metaContent(`meta[property="og:title"]`, `meta[name="og:title"]`),
		selectorText("title"),
		ldField("name"),
		selectorText("h1"),
	}
}

func descriptionProbes() []Probe[string] {
	return []Probe[string]{
		metaContent(`meta[property="og:description"]`, `meta[name="og:description"]`),
		metaContent(`meta[name="description"]`),
		ldField("description"),
	}
}

func brandProbes() []Probe[string] {
	return []Probe[string]{
		metaContent(`meta[property="product:brand"]`, `meta[property="og:brand"]`),
		ldField("brand", "manufacturer"),
		selectorText(`[itemprop="brand"] [itemprop="name"]`, `[itemprop="brand"]`),
		selectorText(`.brand`, `[class*="brand"]`, `[class*="Brand"]`),
	}
}

func genericPriceProbes() []Probe[priceHit] {
	return []Probe[priceHit]{
		jsonLDPrice,
		metaPrice,
		cssPrice(priceSelectors...),
		textPrice,
	}
}

func metaPrice(page *Page) priceHit {
	amount := firstOf(page, metaContent(
		`meta[property="product:price:amount"]`,
		`meta[property="og:price:amount"]`,
		`meta[name="price"]`,
	))
	if amount == "" {
		return priceHit{}
	}

	value := ParsePrice(amount)
	if value == 0 {
		return priceHit{}
	}

	currency := firstOf(page, metaContent(
		`meta[property="product:price:currency"]`,
		`meta[property="og:price:currency"]`,
	))
	return priceHit{Amount: value, Currency: currency}
}

func cssPrice(selectors ...priceSelector) Probe[priceHit] {
	return func(page *Page) priceHit {
		for _, ps := range selectors {
			var hit priceHit
			page.Doc.Find(ps.selector).EachWithBreak(func(i int, s *goquery.Selection) bool {
				hit = elementPrice(s, ps.attr)
				return hit.Amount == 0
			})
			if hit.Amount > 0 {
				return hit
			}
		}
		return priceHit{}
	}
}

func elementPrice(s *goquery.Selection, attr string) priceHit {
	if attr != "" {
		if v, ok := s.Attr(attr); ok {
			if amount := ParsePrice(v); amount > 0 {
				return priceHit{Amount: amount, Currency: currencyFromText(v)}
			}
		}
	}

	text := cleanText(s.Text())
	if text == "" || len([]rune(text)) > maxPriceTextLen {
		return priceHit{}
	}

	if amount := ParsePrice(text); amount > 0 {
		return priceHit{Amount: amount, Currency: currencyFromText(text)}
	}
	return priceHit{}
}

func textPrice(page *Page) priceHit {
	text := page.visibleText()
	for _, tp := range textPricePatterns {
		for _, match := range tp.pattern.FindAllStringSubmatch(text, -1) {
			if amount := ParsePrice(match[1]); amount > 0 {
				return priceHit{Amount: amount, Currency: tp.currency}
			}
		}
	}
	return priceHit{}
}
