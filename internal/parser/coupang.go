package parser

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

// scriptPricePattern finds prices assigned in inline scripts, since Coupang
// renders part of the buy box client-side.
var scriptPricePattern = regexp.MustCompile(`"price"\s*[:=]\s*"?(\d+[,\d]*)"?`)

var coupangStrategy = siteStrategy{
	Title: []string{
		".prod-buy-header__title",
		"h2.prod-buy-header__title",
		"h1.prod-buy-header__title",
		".product-title",
	},
	Description: []string{
		".prod-description",
		".prod-attr-list",
		"#itemBrief",
	},
	Price: []string{
		".prod-sale-price .total-price strong",
		".prod-price .total-price strong",
		".total-price strong",
		".prod-coupon-price .total-price",
		".prod-origin-price .origin-price",
	},
	Images: []string{
		"img.prod-image__detail",
		".prod-image__detail",
		".prod-image__items img",
		".prod-image img",
	},
	Brand: []string{
		"a.prod-brand-name",
		".prod-brand-name",
	},
	ExtraPrice: []Probe[priceHit]{scriptPrice},
}

// ExtractCoupang is the Coupang strategy.
func ExtractCoupang(page *Page) Partial {
	return coupangStrategy.extract(page)
}

// scriptPrice scans inline script bodies; the first block with a price inside
// the magnitude bound wins.
func scriptPrice(page *Page) priceHit {
	var hit priceHit
	page.Doc.Find("script").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if _, external := s.Attr("src"); external {
			return true
		}
		for _, match := range scriptPricePattern.FindAllStringSubmatch(s.Text(), -1) {
			if amount := ParsePrice(match[1]); amount > 0 {
				hit = priceHit{Amount: amount, Currency: "KRW"}
				return false
			}
		}
		return true
	})
	return hit
}
