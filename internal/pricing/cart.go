package pricing

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// SizeSelection is the requested quantity of one size.
type SizeSelection struct {
	Quantity int `json:"quantity"`
}

// CartLine is one variant in a client cart. Display fields are echoed back but never trusted.
type CartLine struct {
	ProductRefID string                   `json:"productRefId" validate:"required"`
	Sizes        map[string]SizeSelection `json:"sizes" validate:"required,min=1"`
	Name         string                   `json:"name,omitempty"`
	SubTitle     string                   `json:"subTitle,omitempty"`
	Color        string                   `json:"color,omitempty"`
	Image        string                   `json:"image,omitempty"`
	Price        *decimal.Decimal         `json:"price,omitempty"`
	OldPrice     *decimal.Decimal         `json:"oldPrice,omitempty"`
	Currency     string                   `json:"currency,omitempty"`
}

type PromoCodeInput struct {
	Code string `json:"code"`
}

// Cart is keyed by variant id.
type Cart struct {
	Products     map[string]CartLine `json:"products" validate:"required,min=1"`
	DeliveryType enums.DeliveryType  `json:"deliveryType" validate:"required,oneof=post courier"`
	Promocode    *PromoCodeInput     `json:"promocode,omitempty"`
}

// PromoCode returns the submitted code or an empty string.
func (c Cart) PromoCode() string {
	if c.Promocode == nil {
		return ""
	}
	return c.Promocode.Code
}

// MismatchedVariant is a requested line that current stock cannot satisfy.
type MismatchedVariant struct {
	VariantID string `json:"variantId"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

// PaymentVariant is a cart line re-priced from catalog data.
type PaymentVariant struct {
	VariantID    string                   `json:"variantId"`
	ProductRefID string                   `json:"productRefId"`
	Name         string                   `json:"name"`
	SubTitle     string                   `json:"subTitle"`
	Price        decimal.Decimal          `json:"price"`
	OldPrice     *decimal.Decimal         `json:"oldPrice,omitempty"`
	Currency     string                   `json:"currency"`
	Color        string                   `json:"color"`
	Image        string                   `json:"image"`
	Sizes        map[string]SizeSelection `json:"sizes"`

	variantID uuid.UUID
	sizeOrder []string
}

// PaymentDetails is the authoritative pricing of a cart.
type PaymentDetails struct {
	TotalCount         int                       `json:"totalCount"`
	TotalPrice         decimal.Decimal           `json:"totalPrice"`
	Shipping           decimal.Decimal           `json:"shipping"`
	Currency           string                    `json:"currency"`
	PercentDiscount    int                       `json:"percentDiscount,omitempty"`
	PromoCodeHash      string                    `json:"-"`
	PaymentVariants    map[string]PaymentVariant `json:"paymentVariants"`
	MismatchedVariants []MismatchedVariant       `json:"mismatchedVariants"`
}

// Rejection is attached as the error detail when a cart cannot be charged.
type Rejection struct {
	Invalid            bool                      `json:"invalid"`
	TotalPrice         decimal.Decimal           `json:"totalPrice"`
	PaymentVariants    map[string]PaymentVariant `json:"paymentVariants"`
	MismatchedVariants []MismatchedVariant       `json:"mismatchedVariants"`
}

// AmountMinor converts the total to processor minor units.
func (d *PaymentDetails) AmountMinor() int64 {
	return d.TotalPrice.Shift(2).Round(0).IntPart()
}

// Lines lists the stock each priced size consumes, ordered by variant and size position.
func (d *PaymentDetails) Lines() []inventory.Line {
	lines := []inventory.Line{}
	for _, pv := range d.orderedVariants() {
		for _, size := range pv.sizeOrder {
			lines = append(lines, inventory.Line{
				VariantID: pv.variantID,
				Size:      size,
				Quantity:  pv.Sizes[size].Quantity,
			})
		}
	}
	return lines
}

// Summary is the immutable snapshot stored on sagas and orders.
func (d *PaymentDetails) Summary() types.PaymentSummary {
	products := make([]types.OrderProduct, 0, len(d.PaymentVariants))
	for _, pv := range d.orderedVariants() {
		sizes := make([]types.SizeQuantity, 0, len(pv.sizeOrder))
		for _, size := range pv.sizeOrder {
			sizes = append(sizes, types.SizeQuantity{Size: size, Quantity: pv.Sizes[size].Quantity})
		}
		products = append(products, types.OrderProduct{
			VariantID:    pv.VariantID,
			ProductRefID: pv.ProductRefID,
			Name:         pv.Name,
			SubTitle:     pv.SubTitle,
			Price:        pv.Price,
			OldPrice:     pv.OldPrice,
			Currency:     pv.Currency,
			Color:        pv.Color,
			Image:        pv.Image,
			Sizes:        sizes,
		})
	}
	return types.PaymentSummary{
		TotalCount: d.TotalCount,
		TotalPrice: d.TotalPrice,
		Currency:   d.Currency,
		Products:   products,
	}
}

func (d *PaymentDetails) orderedVariants() []PaymentVariant {
	keys := make([]string, 0, len(d.PaymentVariants))
	for key := range d.PaymentVariants {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]PaymentVariant, 0, len(keys))
	for _, key := range keys {
		out = append(out, d.PaymentVariants[key])
	}
	return out
}
