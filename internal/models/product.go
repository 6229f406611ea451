package models

// SiteID identifies which extraction strategy a product URL belongs to.
type SiteID string

const (
	SiteGmarket SiteID = "gmarket"
	SiteCoupang SiteID = "coupang"
	SiteGeneric SiteID = "generic"
)

// DefaultCurrency is used when a page does not state its currency.
const DefaultCurrency = "KRW"

// ScrapedProduct is the canonical record handed to the inventory import form.
// A Price of 0 means the price is unknown, not that the product is free.
type ScrapedProduct struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Price       float64     `json:"price"`
	Currency    string      `json:"currency"`
	Images      []string    `json:"images"`
	Brand       string      `json:"brand"`
	SKU         *string     `json:"sku,omitempty"`
	Category    *string     `json:"category,omitempty"`
	Stock       *int        `json:"stock,omitempty"`
	Weight      *float64    `json:"weight,omitempty"`
	Dimensions  *Dimensions `json:"dimensions,omitempty"`
}

// Dimensions are always expressed in centimetres.
type Dimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (d *Dimensions) IsValid() bool {
	return d != nil && d.Length >= 0 && d.Width >= 0 && d.Height >= 0 &&
		(d.Length > 0 || d.Width > 0 || d.Height > 0)
}

func (p *ScrapedProduct) HasPrice() bool {
	return p.Price > 0
}

// MissingFields lists the fields a reviewer should fill in by hand before saving.
func (p *ScrapedProduct) MissingFields() []string {
	var missing []string

	if p.Name == "" {
		missing = append(missing, "name")
	}

	if !p.HasPrice() {
		missing = append(missing, "price")
	}

	if len(p.Images) == 0 {
		missing = append(missing, "images")
	}

	if p.Description == "" {
		missing = append(missing, "description")
	}

	return missing
}
