package product

import (
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GenderFilter narrows search results by the variant's target gender.
type GenderFilter string

const (
	GenderAll    GenderFilter = "all"
	GenderNone   GenderFilter = "null"
	GenderMale   GenderFilter = "male"
	GenderFemale GenderFilter = "female"
)

func (g GenderFilter) IsValid() bool {
	switch g {
	case GenderAll, GenderNone, GenderMale, GenderFemale:
		return true
	}
	return false
}

// SearchQuery is the public search request.
type SearchQuery struct {
	Q           string
	ExactMode   bool
	Colors      []string
	Gender      GenderFilter
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal
	Discount    bool
	Sizes       []string
	SortByPrice string
	Skip        int
}

// SearchResult mirrors the storefront search payload.
type SearchResult struct {
	TotalCount int64        `json:"totalCount"`
	Length     int          `json:"length"`
	Products   []ProductDTO `json:"products"`
}

type SizeDTO struct {
	Size  string `json:"size"`
	Count int    `json:"count"`
}

type VariantDTO struct {
	ID               uuid.UUID            `json:"_id"`
	Name             string               `json:"name"`
	SubTitle         string               `json:"subTitle"`
	Description      *string              `json:"description,omitempty"`
	Price            decimal.Decimal      `json:"price"`
	OldPrice         *decimal.Decimal     `json:"oldPrice,omitempty"`
	Currency         enums.Currency       `json:"currency"`
	Color            string               `json:"color"`
	Gender           *enums.Gender        `json:"gender,omitempty"`
	Images           []types.ImageVariant `json:"images"`
	Sizes            []SizeDTO            `json:"sizes"`
	Available        bool                 `json:"available"`
	AvailableDetails *string              `json:"availableDetails,omitempty"`
	Advantages       []string             `json:"advantages,omitempty"`
	Details          []string             `json:"details,omitempty"`
}

type ProductDTO struct {
	ID       uuid.UUID    `json:"_id"`
	Variants []VariantDTO `json:"variants"`
}

// toVariantDTO maps a variant; the search listing only carries the first two images.
func toVariantDTO(v models.ProductVariant, imageLimit int) VariantDTO {
	images := v.Images
	if imageLimit > 0 && len(images) > imageLimit {
		images = images[:imageLimit]
	}
	if images == nil {
		images = []types.ImageVariant{}
	}
	sizes := make([]SizeDTO, 0, len(v.Sizes))
	for _, s := range v.Sizes {
		sizes = append(sizes, SizeDTO{Size: s.Size, Count: s.Count})
	}
	dto := VariantDTO{
		ID:               v.ID,
		Name:             v.Name,
		SubTitle:         v.SubTitle,
		Description:      v.Description,
		Price:            v.Price,
		Currency:         v.Currency,
		Color:            v.Color,
		Gender:           v.Gender,
		Images:           images,
		Sizes:            sizes,
		Available:        v.Available,
		AvailableDetails: v.AvailableDetails,
		Advantages:       v.Advantages,
		Details:          v.Details,
	}
	if v.OldPrice.Valid {
		old := v.OldPrice.Decimal
		dto.OldPrice = &old
	}
	return dto
}

// groupVariants folds variants into products, keeping first-seen order.
func groupVariants(variants []models.ProductVariant, imageLimit int) []ProductDTO {
	index := make(map[uuid.UUID]int)
	products := make([]ProductDTO, 0)
	for _, v := range variants {
		pos, ok := index[v.ProductID]
		if !ok {
			pos = len(products)
			index[v.ProductID] = pos
			products = append(products, ProductDTO{ID: v.ProductID})
		}
		products[pos].Variants = append(products[pos].Variants, toVariantDTO(v, imageLimit))
	}
	return products
}
