package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/product-import-scraper/internal/models"
)

// measureNumber matches "1,200", "1,200.5", "0,75" and "12.5". Grouped
// thousands are tried first so "1,200" is not cut to "1,2".
const measureNumber = `(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:[.,]\d+)?)`

var thousandsGrouped = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)

var (
	dimensionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:크기|사이즈|치수|규격|dimensions?|size)\s*[:：]?\s*` + measureNumber + `\s*[x×*]\s*` + measureNumber + `\s*[x×*]\s*` + measureNumber + `\s*(mm|cm|m|inch|in|")`),
		regexp.MustCompile(`(?i)` + measureNumber + `\s*[x×*]\s*` + measureNumber + `\s*[x×*]\s*` + measureNumber + `\s*(mm|cm|m|inch|in|")`),
	}

	weightPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:상품\s*)?(?:무게|중량|weight)\s*[:：]?\s*` + measureNumber + `\s*(kg|g|lbs?|pounds?|킬로그램|그램)`),
		regexp.MustCompile(`(?i)` + measureNumber + `\s*(kg)\b`),
	}

	// detailSelectors hold spec tables and detail sections where weight and
	// dimensions are usually listed.
	detailSelectors = []string{
		`[class*="spec"]`,
		`[class*="detail"]`,
		`[class*="info"] table`,
		`[itemprop="description"]`,
		"table",
	}

	breadcrumbSelectors = []string{
		`[itemtype*="BreadcrumbList"] [itemprop="name"]`,
		`nav[aria-label*="breadcrumb"] a`,
		`.breadcrumb li`,
		`[class*="breadcrumb"] a`,
		`[class*="location"] a`,
	}
)

func skuProbes() []Probe[string] {
	return []Probe[string]{
		ldField("sku", "mpn", "productID"),
		selectorText(`[itemprop="sku"]`),
		metaContent(`meta[property="product:retailer_item_id"]`, `meta[name="sku"]`),
	}
}

func categoryProbes() []Probe[string] {
	return []Probe[string]{
		ldField("category"),
		metaContent(`meta[property="product:category"]`, `meta[property="article:section"]`),
		breadcrumbCategory,
	}
}

// breadcrumbCategory picks the last breadcrumb entry that is not the product
// itself.
func breadcrumbCategory(page *Page) string {
	title := cleanText(page.Doc.Find("h1").First().Text())
	for _, selector := range breadcrumbSelectors {
		items := page.Doc.Find(selector)
		for i := items.Length() - 1; i >= 0; i-- {
			text := cleanText(items.Eq(i).Text())
			if text != "" && text != title && len([]rune(text)) <= 60 {
				return text
			}
		}
	}
	return ""
}

// extractStock reads structured stock levels. An out-of-stock marker yields 0;
// "in stock" without a quantity stays unknown.
func extractStock(page *Page) *int {
	for _, product := range page.ldProducts() {
		if n, ok := offerStock(product["offers"]); ok {
			return &n
		}
	}

	availability := page.Doc.Find(`[itemprop="availability"]`).First()
	for _, attr := range []string{"href", "content"} {
		if v, ok := availability.Attr(attr); ok && isOutOfStock(v) {
			zero := 0
			return &zero
		}
	}

	return nil
}

func offerStock(v interface{}) (int, bool) {
	switch offer := v.(type) {
	case map[string]interface{}:
		if n, ok := quantityValue(offer["inventoryLevel"]); ok {
			return int(n), true
		}
		if isOutOfStock(ldString(offer["availability"])) {
			return 0, true
		}
	case []interface{}:
		for _, item := range offer {
			if n, ok := offerStock(item); ok {
				return n, true
			}
		}
	}
	return 0, false
}

func isOutOfStock(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "outofstock") || strings.Contains(s, "soldout") ||
		strings.Contains(s, "discontinued") || strings.Contains(s, "품절")
}

func quantityValue(v interface{}) (float64, bool) {
	switch q := v.(type) {
	case float64:
		return q, q >= 0
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(q), 64)
		return f, err == nil && f >= 0
	case map[string]interface{}:
		return quantityValue(q["value"])
	}
	return 0, false
}

// extractWeight returns the product weight in kilograms.
func extractWeight(page *Page) *float64 {
	for _, product := range page.ldProducts() {
		if kg, ok := ldWeight(product["weight"]); ok {
			return &kg
		}
	}

	for _, text := range detailTexts(page) {
		for _, pattern := range weightPatterns {
			matches := pattern.FindStringSubmatch(text)
			if len(matches) < 3 {
				continue
			}
			if kg := toKilograms(parseFloat(matches[1]), matches[2]); kg > 0 {
				return &kg
			}
		}
	}

	return nil
}

func ldWeight(v interface{}) (float64, bool) {
	switch w := v.(type) {
	case map[string]interface{}:
		value, ok := quantityValue(w["value"])
		if !ok || value <= 0 {
			return 0, false
		}
		unit := ldString(w["unitCode"])
		if unit == "" {
			unit = ldString(w["unitText"])
		}
		kg := toKilograms(value, unit)
		return kg, kg > 0
	case string:
		for _, pattern := range weightPatterns {
			if matches := pattern.FindStringSubmatch("weight " + w); len(matches) >= 3 {
				kg := toKilograms(parseFloat(matches[1]), matches[2])
				return kg, kg > 0
			}
		}
	}
	return 0, false
}

// extractDimensions returns length, width and height in centimetres.
func extractDimensions(page *Page) *models.Dimensions {
	for _, product := range page.ldProducts() {
		if dims := ldDimensions(product); dims != nil {
			return dims
		}
	}

	for _, text := range detailTexts(page) {
		for _, pattern := range dimensionPatterns {
			matches := pattern.FindStringSubmatch(text)
			if len(matches) < 5 {
				continue
			}

			factor := centimetreFactor(matches[4])
			dims := &models.Dimensions{
				Length: parseFloat(matches[1]) * factor,
				Width:  parseFloat(matches[2]) * factor,
				Height: parseFloat(matches[3]) * factor,
			}
			if dims.Length > 0 && dims.Width > 0 && dims.Height > 0 {
				return dims
			}
		}
	}

	return nil
}

func ldDimensions(product map[string]interface{}) *models.Dimensions {
	read := func(key string) float64 {
		m, ok := product[key].(map[string]interface{})
		if !ok {
			return 0
		}
		value, ok := quantityValue(m["value"])
		if !ok {
			return 0
		}
		return value * centimetreFactor(ldString(m["unitCode"]))
	}

	dims := &models.Dimensions{
		Length: read("depth"),
		Width:  read("width"),
		Height: read("height"),
	}
	if dims.Length > 0 && dims.Width > 0 && dims.Height > 0 {
		return dims
	}
	return nil
}

// detailTexts returns candidate text blocks, most specific first, ending with
// the whole visible page.
func detailTexts(page *Page) []string {
	var texts []string
	for _, selector := range detailSelectors {
		page.Doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			if text := cleanText(s.Text()); text != "" {
				texts = append(texts, text)
			}
		})
	}
	return append(texts, page.visibleText())
}

// parseFloat reads a measurement. A comma followed by groups of three digits
// separates thousands; any other comma is a decimal point.
func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if thousandsGrouped.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	} else {
		s = strings.Replace(s, ",", ".", 1)
	}
	val, _ := strconv.ParseFloat(s, 64)
	return val
}

func toKilograms(value float64, unit string) float64 {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "kg", "kgm", "kilogram", "kilograms", "킬로그램", "":
		return value
	case "g", "grm", "gram", "grams", "그램":
		return value / 1000
	case "lb", "lbs", "lbr", "pound", "pounds":
		return value * 0.45359237
	default:
		return 0
	}
}

func centimetreFactor(unit string) float64 {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "mm", "mmt", "millimeter":
		return 0.1
	case "m", "mtr", "meter":
		return 100
	case "inch", "in", "inh", `"`:
		return 2.54
	default:
		return 1
	}
}
