package parser

var gmarketStrategy = siteStrategy{
	Title: []string{
		"h1.itemtit",
		".itemtit",
		".box__item-title .text__item-title",
		".box__item-title h1",
	},
	Description: []string{
		".box__item-summary",
		".item-summary",
	},
	Price: []string{
		"strong.price_real",
		".price_real",
		".box__price-seller .text__value",
		".box__price .text__value",
		".price_innerwrap .price_real",
	},
	Images: []string{
		".box__viewer-container img",
		"#viewer img",
		".item-topgallerywrap img",
		".box__thumbnail-list img",
		".thumb-gallery img",
	},
	Brand: []string{
		".text__brand",
		".box__brand a",
		".text__seller a",
	},
}

// ExtractGmarket is the Gmarket strategy.
func ExtractGmarket(page *Page) Partial {
	return gmarketStrategy.extract(page)
}
