package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderPlacedEvent is emitted in the same transaction that persists an order.
type OrderPlacedEvent struct {
	OrderID           uuid.UUID       `json:"order_id"`
	OrderNumber       int64           `json:"order_number"`
	CustomerID        uuid.UUID       `json:"customer_id"`
	SagaID            uuid.UUID       `json:"saga_id"`
	PaymentChargeID   string          `json:"payment_charge_id"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	Currency          string          `json:"currency"`
	TotalProductCount int             `json:"total_product_count"`
	DeliveryType      string          `json:"delivery_type"`
	OrderDate         time.Time       `json:"order_date"`
}

// CheckoutCompensatedEvent records a refunded charge that never became an order.
type CheckoutCompensatedEvent struct {
	SagaID      uuid.UUID `json:"saga_id"`
	CustomerID  uuid.UUID `json:"customer_id"`
	ChargeID    string    `json:"charge_id"`
	RefundID    string    `json:"refund_id"`
	AmountMinor int64     `json:"amount_minor"`
	Currency    string    `json:"currency"`
	Restocked   bool      `json:"restocked"`
	Reason      string    `json:"reason"`
}

// PromoCodeIssuedEvent announces a new newsletter promo code. The code itself is never included.
type PromoCodeIssuedEvent struct {
	PromoCodeID     uuid.UUID `json:"promo_code_id"`
	Email           string    `json:"email"`
	PercentDiscount int       `json:"percent_discount"`
	EndDate         time.Time `json:"end_date"`
}
