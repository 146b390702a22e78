package pricing

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/promo"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const fallbackCurrency = "usd"

var hundred = decimal.NewFromInt(100)

// VariantReader loads authoritative variants with their size stock.
type VariantReader interface {
	FindVariantsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.ProductVariant, error)
}

// PromoValidator resolves a promo code to its discount.
type PromoValidator interface {
	Validate(ctx context.Context, code string) (*promo.Discount, error)
}

// Engine prices carts against current inventory. It holds no per-request state.
type Engine struct {
	variants VariantReader
	promos   PromoValidator
	shipping config.ShippingConfig
}

func NewEngine(variants VariantReader, promos PromoValidator, shipping config.ShippingConfig) (*Engine, error) {
	if variants == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "variant reader required")
	}
	if promos == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "promo validator required")
	}
	return &Engine{variants: variants, promos: promos, shipping: shipping}, nil
}

// ComputePaymentDetails re-prices the cart. Carts with mismatched lines or a zero total
// are rejected with a VALIDATION error carrying a Rejection.
func (e *Engine) ComputePaymentDetails(ctx context.Context, cart Cart, promoCode string) (*PaymentDetails, error) {
	if !cart.DeliveryType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deliveryType must be post or courier")
	}

	catalog, err := e.loadVariants(ctx, cart)
	if err != nil {
		return nil, err
	}

	details := &PaymentDetails{
		TotalPrice:         decimal.Zero,
		Shipping:           decimal.Zero,
		PaymentVariants:    map[string]PaymentVariant{},
		MismatchedVariants: []MismatchedVariant{},
	}

	variantKeys := make([]string, 0, len(cart.Products))
	for key := range cart.Products {
		variantKeys = append(variantKeys, key)
	}
	sort.Strings(variantKeys)

	for _, key := range variantKeys {
		line := cart.Products[key]
		variant := catalog.lookup(key, line.ProductRefID)
		if variant == nil {
			for size, sel := range line.Sizes {
				details.MismatchedVariants = append(details.MismatchedVariants, MismatchedVariant{VariantID: key, Size: size, Quantity: sel.Quantity})
			}
			continue
		}
		pv := PaymentVariant{
			VariantID:    variant.ID.String(),
			ProductRefID: variant.ProductID.String(),
			Name:         variant.Name,
			SubTitle:     variant.SubTitle,
			Price:        variant.Price,
			Currency:     string(variant.Currency),
			Color:        variant.Color,
			Image:        variant.Thumbnail(),
			Sizes:        map[string]SizeSelection{},
			variantID:    variant.ID,
		}
		if variant.OldPrice.Valid {
			oldPrice := variant.OldPrice.Decimal
			pv.OldPrice = &oldPrice
		}

		known := map[string]bool{}
		for _, stock := range variant.Sizes {
			known[stock.Size] = true
			sel, requested := line.Sizes[stock.Size]
			if !requested {
				continue
			}
			if sel.Quantity < 1 || sel.Quantity > stock.Count {
				details.MismatchedVariants = append(details.MismatchedVariants, MismatchedVariant{VariantID: key, Size: stock.Size, Quantity: sel.Quantity})
				continue
			}
			pv.Sizes[stock.Size] = sel
			pv.sizeOrder = append(pv.sizeOrder, stock.Size)
			details.TotalCount += sel.Quantity
		}
		for size, sel := range line.Sizes {
			if !known[size] {
				details.MismatchedVariants = append(details.MismatchedVariants, MismatchedVariant{VariantID: key, Size: size, Quantity: sel.Quantity})
			}
		}

		if len(pv.sizeOrder) > 0 {
			details.PaymentVariants[key] = pv
			if details.Currency == "" {
				details.Currency = variant.Currency.Processor()
			}
		}
	}

	if promoCode = strings.TrimSpace(promoCode); promoCode != "" {
		discount, err := e.promos.Validate(ctx, promoCode)
		if err != nil {
			return nil, err
		}
		details.PercentDiscount = discount.PercentDiscount
		details.PromoCodeHash = discount.CodeHash
		applyDiscount(details, discount.PercentDiscount)
	}

	total := decimal.Zero
	for _, pv := range details.PaymentVariants {
		for _, sel := range pv.Sizes {
			total = total.Add(pv.Price.Mul(decimal.NewFromInt(int64(sel.Quantity))))
		}
	}
	if total.IsPositive() && total.LessThan(e.shipping.FreeThreshold()) {
		details.Shipping = e.shippingCost(cart.DeliveryType)
		total = total.Add(details.Shipping)
	}
	details.TotalPrice = total.Round(2)

	sort.Slice(details.MismatchedVariants, func(i, j int) bool {
		a, b := details.MismatchedVariants[i], details.MismatchedVariants[j]
		if a.VariantID != b.VariantID {
			return a.VariantID < b.VariantID
		}
		return a.Size < b.Size
	})
	if details.Currency == "" {
		details.Currency = catalog.firstCurrency()
	}

	if details.TotalPrice.IsZero() || len(details.MismatchedVariants) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart contains unavailable items").WithDetails(Rejection{
			Invalid:            true,
			TotalPrice:         details.TotalPrice,
			PaymentVariants:    details.PaymentVariants,
			MismatchedVariants: details.MismatchedVariants,
		})
	}
	return details, nil
}

// applyDiscount lowers the unit price of every variant not already on sale. No rounding here.
func applyDiscount(details *PaymentDetails, percent int) {
	if percent <= 0 {
		return
	}
	pct := decimal.NewFromInt(int64(percent))
	for key, pv := range details.PaymentVariants {
		if pv.OldPrice != nil {
			continue
		}
		pv.Price = pv.Price.Sub(pv.Price.Mul(pct).Div(hundred))
		details.PaymentVariants[key] = pv
	}
}

func (e *Engine) shippingCost(deliveryType enums.DeliveryType) decimal.Decimal {
	if deliveryType == enums.DeliveryTypeCourier {
		return e.shipping.CourierCost()
	}
	return e.shipping.PostCost()
}

type variantCatalog struct {
	byID    map[uuid.UUID]*models.ProductVariant
	ordered []*models.ProductVariant
}

func (e *Engine) loadVariants(ctx context.Context, cart Cart) (*variantCatalog, error) {
	ids := make([]uuid.UUID, 0, len(cart.Products))
	for key := range cart.Products {
		if id, err := uuid.Parse(key); err == nil {
			ids = append(ids, id)
		}
	}
	variants, err := e.variants.FindVariantsByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart variants")
	}
	catalog := &variantCatalog{byID: make(map[uuid.UUID]*models.ProductVariant, len(variants))}
	for i := range variants {
		catalog.byID[variants[i].ID] = &variants[i]
		catalog.ordered = append(catalog.ordered, &variants[i])
	}
	return catalog, nil
}

// lookup finds the variant only when it belongs to the referenced product.
func (c *variantCatalog) lookup(variantKey, productRefID string) *models.ProductVariant {
	id, err := uuid.Parse(variantKey)
	if err != nil {
		return nil
	}
	variant, ok := c.byID[id]
	if !ok {
		return nil
	}
	if ref, err := uuid.Parse(productRefID); err != nil || ref != variant.ProductID {
		return nil
	}
	return variant
}

func (c *variantCatalog) firstCurrency() string {
	for _, v := range c.ordered {
		if v.Currency.IsValid() {
			return v.Currency.Processor()
		}
	}
	return fallbackCurrency
}
