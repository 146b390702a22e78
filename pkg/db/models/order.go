package models

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order is the immutable record of a paid checkout. Only Status may change after creation.
type Order struct {
	ID                uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber       int64                `gorm:"column:order_number;not null;uniqueIndex"`
	CustomerID        uuid.UUID            `gorm:"column:customer_id;type:uuid;not null"`
	SagaID            uuid.UUID            `gorm:"column:saga_id;type:uuid;not null"`
	Products          []types.OrderProduct `gorm:"column:products;type:jsonb;not null;serializer:json"`
	Status            enums.OrderStatus    `gorm:"column:status;type:text;not null;default:'pending'"`
	InvoiceAddress    types.Address        `gorm:"column:invoice_address;type:jsonb;not null"`
	DeliveryAddress   types.Address        `gorm:"column:delivery_address;type:jsonb;not null"`
	TotalAmount       decimal.Decimal      `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency          string               `gorm:"column:currency;not null"`
	TotalProductCount int                  `gorm:"column:total_product_count;not null"`
	DeliveryType      enums.DeliveryType   `gorm:"column:delivery_type;type:text;not null"`
	PaymentChargeID   string               `gorm:"column:payment_charge_id;not null;uniqueIndex"`
	OrderDate         time.Time            `gorm:"column:order_date;not null"`
	CreatedAt         time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
