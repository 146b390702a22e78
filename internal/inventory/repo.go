package inventory

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrInsufficientStock is returned when a conditional decrement finds less stock than requested.
var ErrInsufficientStock = errors.New("insufficient stock")

// Line is a quantity of one size of a variant.
type Line struct {
	VariantID uuid.UUID
	Size      string
	Quantity  int
}

// ShortageError lists every line whose decrement precondition failed.
type ShortageError struct {
	Lines []Line
}

func (e *ShortageError) Error() string {
	return ErrInsufficientStock.Error()
}

func (e *ShortageError) Unwrap() error {
	return ErrInsufficientStock
}

// Repository is the only writer of variant stock levels.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindVariantsByIDs loads variants with their sizes in display order.
func (r *Repository) FindVariantsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.ProductVariant, error) {
	if len(ids) == 0 {
		return []models.ProductVariant{}, nil
	}
	var variants []models.ProductVariant
	err := r.db.WithContext(ctx).
		Preload("Sizes", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("id IN ?", ids).
		Find(&variants).Error
	return variants, err
}

// FindVariant loads one variant of a product.
func (r *Repository) FindVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	err := r.db.WithContext(ctx).
		Preload("Sizes", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("id = ? AND product_id = ?", variantID, productID).
		First(&variant).Error
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

// Decrement subtracts qty from one size only when enough stock remains.
func (r *Repository) Decrement(ctx context.Context, variantID uuid.UUID, size string, qty int) error {
	if qty < 1 {
		return ErrInsufficientStock
	}
	res := r.db.WithContext(ctx).Exec(
		`UPDATE variant_sizes SET count = count - ? WHERE variant_id = ? AND size = ? AND count >= ?`,
		qty, variantID, size, qty,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrInsufficientStock
	}
	return nil
}

// Restock returns qty to a size and makes the variant available again.
func (r *Repository) Restock(ctx context.Context, variantID uuid.UUID, size string, qty int) error {
	if qty < 1 {
		return nil
	}
	conn := r.db.WithContext(ctx)
	if err := conn.Exec(
		`UPDATE variant_sizes SET count = count + ? WHERE variant_id = ? AND size = ?`,
		qty, variantID, size,
	).Error; err != nil {
		return err
	}
	return conn.Model(&models.ProductVariant{}).
		Where("id = ?", variantID).
		Updates(map[string]any{"available": true, "updated_at": time.Now().UTC()}).Error
}

// MarkUnavailableIfExhausted flips available to false once every size is at zero.
func (r *Repository) MarkUnavailableIfExhausted(ctx context.Context, variantID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE product_variants SET available = ?, updated_at = ?
		 WHERE id = ? AND available = ?
		 AND NOT EXISTS (SELECT 1 FROM variant_sizes WHERE variant_id = ? AND count > 0)`,
		false, time.Now().UTC(), variantID, true, variantID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CommitLines decrements every line and marks exhausted variants. Callers run it inside a
// transaction; a *ShortageError means nothing should be committed.
func (r *Repository) CommitLines(ctx context.Context, lines []Line) error {
	var short []Line
	touched := map[uuid.UUID]struct{}{}
	for _, line := range lines {
		err := r.Decrement(ctx, line.VariantID, line.Size, line.Quantity)
		switch {
		case errors.Is(err, ErrInsufficientStock):
			short = append(short, line)
		case err != nil:
			return err
		default:
			touched[line.VariantID] = struct{}{}
		}
	}
	if len(short) > 0 {
		return &ShortageError{Lines: short}
	}

	ids := make([]uuid.UUID, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for _, id := range ids {
		if _, err := r.MarkUnavailableIfExhausted(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// RestockLines undoes CommitLines.
func (r *Repository) RestockLines(ctx context.Context, lines []Line) error {
	for _, line := range lines {
		if err := r.Restock(ctx, line.VariantID, line.Size, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}
