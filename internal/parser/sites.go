package parser

// siteStrategy is a curated selector set for one marketplace. Curated selectors
// run first; anything they miss is filled from the generic chains.
type siteStrategy struct {
	Title       []string
	Description []string
	Price       []string
	Images      []string
	Brand       []string

	// ExtraPrice runs after the curated price selectors and before the generic
	// price chain.
	ExtraPrice []Probe[priceHit]
}

func (s siteStrategy) extract(page *Page) Partial {
	pricePrimary := []Probe[priceHit]{cssPrice(asPriceSelectors(s.Price)...)}
	price := firstOf(page, append(pricePrimary, s.ExtraPrice...)...)

	out := Partial{
		Name:        firstOf(page, selectorText(s.Title...)),
		Description: firstOf(page, selectorText(s.Description...)),
		Price:       price.Amount,
		Currency:    price.Currency,
		Brand:       firstOf(page, selectorText(s.Brand...)),
	}

	set := newImageSet(page.URL)
	set.addSelectors(page, s.Images...)
	if set.Len() > 0 {
		out.Images = set.List()
	}

	out.fillFrom(ExtractGeneric(page))
	return out
}

func asPriceSelectors(selectors []string) []priceSelector {
	out := make([]priceSelector, 0, len(selectors))
	for _, s := range selectors {
		out = append(out, priceSelector{selector: s})
	}
	return out
}
