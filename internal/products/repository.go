package product

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// priceExpr compares prices numerically on every dialect.
const priceExpr = "CAST(product_variants.price AS DOUBLE PRECISION)"

// SearchFilter is the normalized variant filter handed to the repository.
type SearchFilter struct {
	Terms       []string
	Exact       bool
	Colors      []string
	Gender      GenderFilter
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal
	Discount    bool
	Sizes       []string
	SortByPrice string
	Skip        int
	Limit       int
}

// Repository reads the catalog.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) SearchVariants(ctx context.Context, f SearchFilter) ([]models.ProductVariant, int64, error) {
	base := r.filtered(r.db.WithContext(ctx).Model(&models.ProductVariant{}), f)

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := base.Session(&gorm.Session{}).Preload("Sizes", orderSizes)
	switch f.SortByPrice {
	case "asc":
		query = query.Order(priceExpr + " ASC")
	case "desc":
		query = query.Order(priceExpr + " DESC")
	default:
		query = query.Order("product_variants.created_at DESC")
	}
	query = query.Order("product_variants.id ASC")

	if f.Skip > 0 {
		query = query.Offset(f.Skip)
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}

	var variants []models.ProductVariant
	if err := query.Find(&variants).Error; err != nil {
		return nil, 0, err
	}
	return variants, total, nil
}

// FindProduct loads a product with its variants; gorm.ErrRecordNotFound when missing.
func (r *Repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("Variants.Sizes", orderSizes).
		Where("id = ?", id).
		Take(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *Repository) filtered(db *gorm.DB, f SearchFilter) *gorm.DB {
	db = db.Where("product_variants.images IS NOT NULL AND product_variants.images NOT IN ('[]', 'null')")

	if len(f.Terms) > 0 {
		if f.Exact {
			phrase := "%" + escapeLike(strings.ToLower(strings.Join(f.Terms, " "))) + "%"
			db = db.Where("(LOWER(product_variants.name) LIKE ? OR LOWER(product_variants.sub_title) LIKE ?)", phrase, phrase)
		} else {
			clauses := make([]string, 0, len(f.Terms))
			args := make([]any, 0, len(f.Terms)*3)
			for _, term := range f.Terms {
				like := "%" + escapeLike(strings.ToLower(term)) + "%"
				clauses = append(clauses, "LOWER(product_variants.name) LIKE ? OR LOWER(product_variants.sub_title) LIKE ? OR LOWER(COALESCE(product_variants.description, '')) LIKE ?")
				args = append(args, like, like, like)
			}
			db = db.Where("("+strings.Join(clauses, " OR ")+")", args...)
		}
	}

	if len(f.Colors) > 0 {
		clauses := make([]string, 0, len(f.Colors))
		args := make([]any, 0, len(f.Colors))
		for _, color := range f.Colors {
			clauses = append(clauses, "LOWER(product_variants.color) LIKE ?")
			args = append(args, "%"+escapeLike(strings.ToLower(color))+"%")
		}
		db = db.Where("("+strings.Join(clauses, " OR ")+")", args...)
	}

	switch f.Gender {
	case GenderNone:
		db = db.Where("product_variants.gender IS NULL")
	case GenderMale, GenderFemale:
		db = db.Where("product_variants.gender = ?", string(f.Gender))
	}

	if f.Discount {
		db = db.Where("product_variants.old_price IS NOT NULL")
	}
	if f.MinPrice != nil {
		db = db.Where(priceExpr+" >= ?", f.MinPrice.InexactFloat64())
	}
	if f.MaxPrice != nil {
		db = db.Where(priceExpr+" <= ?", f.MaxPrice.InexactFloat64())
	}

	if len(f.Sizes) > 0 {
		db = db.Where("EXISTS (SELECT 1 FROM variant_sizes vs WHERE vs.variant_id = product_variants.id AND vs.size IN ? AND vs.count >= 1)", f.Sizes)
	}
	return db
}

func orderSizes(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func escapeLike(value string) string {
	return strings.NewReplacer("%", "", "_", "").Replace(value)
}

// IsNotFound reports whether err is a missing catalog row.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
