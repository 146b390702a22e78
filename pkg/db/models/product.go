package models

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product groups the sellable variants of one catalog entry.
type Product struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Variants  []ProductVariant `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ProductVariant is a specific sellable configuration with its own price and per-size stock.
type ProductVariant struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID        uuid.UUID            `gorm:"column:product_id;type:uuid;not null"`
	Name             string               `gorm:"column:name;not null"`
	SubTitle         string               `gorm:"column:sub_title;not null"`
	Description      *string              `gorm:"column:description"`
	Price            decimal.Decimal      `gorm:"column:price;type:numeric(12,2);not null"`
	OldPrice         decimal.NullDecimal  `gorm:"column:old_price;type:numeric(12,2)"`
	Currency         enums.Currency       `gorm:"column:currency;type:text;not null;default:'USD'"`
	Color            string               `gorm:"column:color;not null;default:''"`
	Gender           *enums.Gender        `gorm:"column:gender;type:text"`
	Images           []types.ImageVariant `gorm:"column:images;type:jsonb;serializer:json"`
	Advantages       []string             `gorm:"column:advantages;type:jsonb;serializer:json"`
	Details          []string             `gorm:"column:details;type:jsonb;serializer:json"`
	SizeSummary      []string             `gorm:"column:size_summary;type:jsonb;serializer:json"`
	Available        bool                 `gorm:"column:available;not null;default:true"`
	AvailableDetails *string              `gorm:"column:available_details"`
	Sizes            []VariantSize        `gorm:"foreignKey:VariantID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *ProductVariant) BeforeCreate(*gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// Size returns the stock row for the given size label.
func (v *ProductVariant) Size(label string) (VariantSize, bool) {
	for _, s := range v.Sizes {
		if s.Size == label {
			return s, true
		}
	}
	return VariantSize{}, false
}

// Thumbnail returns the first image thumbnail or an empty string.
func (v *ProductVariant) Thumbnail() string {
	if len(v.Images) == 0 {
		return ""
	}
	return v.Images[0].Thumbnail
}

// VariantSize holds the stock count for one size of a variant. Count never drops below zero.
type VariantSize struct {
	VariantID uuid.UUID `gorm:"column:variant_id;type:uuid;primaryKey"`
	Size      string    `gorm:"column:size;primaryKey"`
	Position  int       `gorm:"column:position;not null;default:0"`
	Count     int       `gorm:"column:count;not null;default:0"`
}
