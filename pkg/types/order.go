package types

import "github.com/shopspring/decimal"

// SizeQuantity is one purchased size of a variant.
type SizeQuantity struct {
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
}

// OrderProduct is the immutable snapshot of a priced variant stored on orders and sagas.
type OrderProduct struct {
	VariantID    string           `json:"variantId"`
	ProductRefID string           `json:"productRefId"`
	Name         string           `json:"name"`
	SubTitle     string           `json:"subTitle"`
	Price        decimal.Decimal  `json:"price"`
	OldPrice     *decimal.Decimal `json:"oldPrice,omitempty"`
	Currency     string           `json:"currency"`
	Color        string           `json:"color"`
	Image        string           `json:"image"`
	Sizes        []SizeQuantity   `json:"sizes"`
}

// Quantity sums the purchased sizes.
func (p OrderProduct) Quantity() int {
	total := 0
	for _, s := range p.Sizes {
		total += s.Quantity
	}
	return total
}

// PaymentSummary is what a checkout charged for.
type PaymentSummary struct {
	TotalCount int             `json:"totalCount"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Currency   string          `json:"currency"`
	Products   []OrderProduct  `json:"products"`
}

// ImageVariant is one product image in two resolutions.
type ImageVariant struct {
	Thumbnail string `json:"thumbnail"`
	Original  string `json:"original"`
}
