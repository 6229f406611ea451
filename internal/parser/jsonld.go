package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// jsonLD returns the decoded root of every well-formed ld+json block. Blocks
// that fail to decode are skipped so one broken block never hides the others.
func (p *Page) jsonLD() []interface{} {
	if p.ldParsed {
		return p.ldNodes
	}
	p.ldParsed = true

	p.Doc.Find(`script[type="application/ld+json"]`).Each(func(i int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}

		var root interface{}
		if err := json.Unmarshal([]byte(raw), &root); err != nil {
			return
		}
		p.ldNodes = append(p.ldNodes, root)
	})

	return p.ldNodes
}

// ldProducts flattens arrays and @graph containers and keeps the Product nodes.
func (p *Page) ldProducts() []map[string]interface{} {
	var products []map[string]interface{}

	var walk func(v interface{})
	walk = func(v interface{}) {
		switch node := v.(type) {
		case []interface{}:
			for _, item := range node {
				walk(item)
			}
		case map[string]interface{}:
			if isLDType(node, "Product") {
				products = append(products, node)
			}
			if graph, ok := node["@graph"]; ok {
				walk(graph)
			}
		}
	}

	for _, root := range p.jsonLD() {
		walk(root)
	}

	return products
}

func isLDType(node map[string]interface{}, want string) bool {
	switch t := node["@type"].(type) {
	case string:
		return strings.EqualFold(t, want)
	case []interface{}:
		for _, item := range t {
			if s, ok := item.(string); ok && strings.EqualFold(s, want) {
				return true
			}
		}
	}
	return false
}

// jsonLDPrice checks every block in document order: offers.price, then a
// top-level price, then the first array element exposing offers.price.
func jsonLDPrice(page *Page) priceHit {
	for _, root := range page.jsonLD() {
		if hit := ldPrice(root); hit.Amount > 0 {
			return hit
		}
	}
	return priceHit{}
}

func ldPrice(v interface{}) priceHit {
	switch node := v.(type) {
	case map[string]interface{}:
		if offers, ok := node["offers"]; ok {
			if hit := offersPrice(offers); hit.Amount > 0 {
				return hit
			}
		}
		if amount := ldAmount(node["price"]); amount > 0 {
			return priceHit{Amount: amount, Currency: ldString(node["priceCurrency"])}
		}
		if graph, ok := node["@graph"]; ok {
			return ldPrice(graph)
		}
	case []interface{}:
		for _, item := range node {
			if hit := ldPrice(item); hit.Amount > 0 {
				return hit
			}
		}
	}
	return priceHit{}
}

// offersPrice handles Offer, AggregateOffer and arrays of offers.
func offersPrice(v interface{}) priceHit {
	switch offer := v.(type) {
	case map[string]interface{}:
		currency := ldString(offer["priceCurrency"])
		for _, key := range []string{"price", "lowPrice"} {
			if amount := ldAmount(offer[key]); amount > 0 {
				return priceHit{Amount: amount, Currency: currency}
			}
		}
		if spec, ok := offer["priceSpecification"]; ok {
			return offersPrice(spec)
		}
	case []interface{}:
		for _, item := range offer {
			if hit := offersPrice(item); hit.Amount > 0 {
				return hit
			}
		}
	}
	return priceHit{}
}

// ldAmount reads a price that may be encoded as a JSON number or string.
func ldAmount(v interface{}) float64 {
	switch amount := v.(type) {
	case float64:
		return boundPrice(amount)
	case string:
		return ParsePrice(amount)
	default:
		return 0
	}
}

// ldString reads plain strings and {"name": "..."} objects such as Brand.
func ldString(v interface{}) string {
	switch value := v.(type) {
	case string:
		return cleanText(value)
	case float64:
		return fmt.Sprintf("%.0f", value)
	case map[string]interface{}:
		return ldString(value["name"])
	case []interface{}:
		for _, item := range value {
			if s := ldString(item); s != "" {
				return s
			}
		}
	}
	return ""
}

// ldField returns the first non-empty string value of key across Product nodes.
func ldField(keys ...string) Probe[string] {
	return func(page *Page) string {
		for _, product := range page.ldProducts() {
			for _, key := range keys {
				if s := ldString(product[key]); s != "" {
					return s
				}
			}
		}
		return ""
	}
}

// ldImages lists image URLs declared on Product nodes.
func ldImages(page *Page) []string {
	var images []string
	for _, product := range page.ldProducts() {
		switch img := product["image"].(type) {
		case string:
			images = append(images, img)
		case []interface{}:
			for _, item := range img {
				switch v := item.(type) {
				case string:
					images = append(images, v)
				case map[string]interface{}:
					images = append(images, ldString(v["url"]))
				}
			}
		case map[string]interface{}:
			images = append(images, ldString(img["url"]))
		}
	}
	return images
}
