package models

import (
	"time"

	dbtypes "github.com/angelmondragon/storefront-backend/pkg/db/types"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a storefront customer account.
type User struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email            string                `gorm:"column:email;type:text;not null;uniqueIndex"`
	PasswordHash     string                `gorm:"column:password_hash;not null"`
	FirstName        string                `gorm:"column:first_name;not null"`
	LastName         string                `gorm:"column:last_name;not null"`
	Gender           enums.Gender          `gorm:"column:gender;type:text;not null;default:'male'"`
	BirthDate        *time.Time            `gorm:"column:birth_date"`
	PhoneNumber      *string               `gorm:"column:phone_number"`
	IsActivated      bool                  `gorm:"column:is_activated;not null;default:false"`
	OTPSecret        string                `gorm:"column:otp_secret;not null"`
	OTPSentAt        *time.Time            `gorm:"column:otp_sent_at"`
	InvoiceDelivery  enums.InvoiceDelivery `gorm:"column:invoice_delivery;type:text;not null;default:'electronic'"`
	AddressList      types.AddressList     `gorm:"column:address_list;type:jsonb;not null"`
	InvoiceAddress   *types.Address        `gorm:"column:invoice_address;type:jsonb"`
	OrderIDs         dbtypes.UUIDArray     `gorm:"column:order_ids;type:uuid[];not null;default:'{}'"`
	NewsSubscriberID *uuid.UUID            `gorm:"column:news_subscriber_id;type:uuid"`
	LastLoginAt      *time.Time            `gorm:"column:last_login_at"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.OrderIDs == nil {
		u.OrderIDs = dbtypes.UUIDArray{}
	}
	return nil
}

// HasCheckoutAddresses reports whether both a delivery and an invoice address are on file.
func (u *User) HasCheckoutAddresses() bool {
	return len(u.AddressList.List) > 0 && u.InvoiceAddress != nil
}
