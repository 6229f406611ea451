package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Prices outside (MinPrice, MaxPrice) are treated as mis-extracted values such as
// phone numbers or product ids.
const (
	MinPrice = 0
	MaxPrice = 100_000_000
)

var (
	nonPriceChars = regexp.MustCompile(`[^\d,.]`)
	priceRun      = regexp.MustCompile(`[\d,]*\d[\d,]*`)
)

// ParsePrice pulls the first digit run out of a price-like fragment.
// It returns 0 when nothing usable is found; 0 means "unknown price".
func ParsePrice(text string) float64 {
	stripped := nonPriceChars.ReplaceAllString(text, "")

	run := priceRun.FindString(stripped)
	if run == "" {
		return 0
	}

	value, err := strconv.ParseFloat(strings.ReplaceAll(run, ",", ""), 64)
	if err != nil {
		return 0
	}

	return boundPrice(value)
}

// boundPrice applies the magnitude bound and returns 0 for rejected values.
func boundPrice(value float64) float64 {
	if math.IsNaN(value) || value <= MinPrice || value >= MaxPrice {
		return 0
	}
	return value
}

// priceHit is the result of one price tier. The zero value means "not found".
type priceHit struct {
	Amount   float64
	Currency string
}

// currencyFromText guesses the currency from a symbol or code in a price fragment.
func currencyFromText(text string) string {
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(text, "₩"), strings.Contains(text, "원"), strings.Contains(upper, "KRW"):
		return "KRW"
	case strings.Contains(upper, "USD"), strings.Contains(text, "$"):
		return "USD"
	case strings.Contains(upper, "EUR"), strings.Contains(text, "€"):
		return "EUR"
	case strings.Contains(upper, "JPY"), strings.Contains(text, "¥"), strings.Contains(text, "円"):
		return "JPY"
	default:
		return ""
	}
}
