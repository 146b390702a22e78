package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PromoCode is addressed by the hash of its code; the plaintext is never stored.
type PromoCode struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CodeHash        string    `gorm:"column:code_hash;not null;uniqueIndex"`
	Email           string    `gorm:"column:email;not null;uniqueIndex"`
	PercentDiscount int       `gorm:"column:percent_discount;not null"`
	UsageLimit      int       `gorm:"column:usage_limit;not null;default:1"`
	UsageCount      int       `gorm:"column:usage_count;not null;default:0"`
	StartDate       time.Time `gorm:"column:start_date;not null"`
	EndDate         time.Time `gorm:"column:end_date;not null"`
	ExpiryAt        time.Time `gorm:"column:expiry_at;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (p *PromoCode) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// NewsSubscriber is a newsletter signup; one per email.
type NewsSubscriber struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email     string    `gorm:"column:email;not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (n *NewsSubscriber) BeforeCreate(*gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
