package models

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CheckoutSaga is written before the processor is charged and advanced through every
// checkout step so a crashed checkout can be resumed or compensated. Its ID doubles as
// the processor idempotency key; ChargeID is the reconciliation anchor once known.
type CheckoutSaga struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID            `gorm:"column:user_id;type:uuid;not null"`
	IdempotencyKey *string              `gorm:"column:idempotency_key;uniqueIndex"`
	State          enums.CheckoutState  `gorm:"column:state;type:text;not null"`
	ChargeID       *string              `gorm:"column:charge_id;uniqueIndex"`
	ChargeStatus   *string              `gorm:"column:charge_status"`
	RefundID       *string              `gorm:"column:refund_id"`
	PaymentToken   string               `gorm:"column:payment_token;not null"`
	AmountMinor    int64                `gorm:"column:amount_minor;not null"`
	Currency       string               `gorm:"column:currency;not null"`
	Description    string               `gorm:"column:description;not null"`
	DeliveryType   enums.DeliveryType   `gorm:"column:delivery_type;type:text;not null"`
	Payment        types.PaymentSummary `gorm:"column:payment;type:jsonb;not null;serializer:json"`
	PromoCodeHash  *string              `gorm:"column:promo_code_hash"`
	StockCommitted bool                 `gorm:"column:stock_committed;not null;default:false"`
	PromoApplied   bool                 `gorm:"column:promo_applied;not null;default:false"`
	OrderID        *uuid.UUID           `gorm:"column:order_id;type:uuid"`
	FailureReason  *string              `gorm:"column:failure_reason"`
	AttemptCount   int                  `gorm:"column:attempt_count;not null;default:0"`
	LastError      *string              `gorm:"column:last_error"`
	NextAttemptAt  time.Time            `gorm:"column:next_attempt_at;not null"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *CheckoutSaga) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Charged reports whether the processor has accepted the charge.
func (s *CheckoutSaga) Charged() bool {
	return s.ChargeID != nil && *s.ChargeID != ""
}
