package promo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Repository persists promo codes and newsletter subscribers.
type Repository struct {
	db *gorm.DB
}

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

func (r *Repository) Create(ctx context.Context, code *models.PromoCode) error {
	return r.db.WithContext(ctx).Create(code).Error
}

func (r *Repository) FindByHash(ctx context.Context, hash string) (*models.PromoCode, error) {
	return r.findOne(ctx, "code_hash = ?", hash)
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.PromoCode, error) {
	return r.findOne(ctx, "email = ?", email)
}

func (r *Repository) findOne(ctx context.Context, query string, arg any) (*models.PromoCode, error) {
	var code models.PromoCode
	err := r.db.WithContext(ctx).Where(query, arg).First(&code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &code, nil
}

// IncrementUsage bumps usage_count atomically. Zero rows means the code is gone.
func (r *Repository) IncrementUsage(ctx context.Context, hash string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PromoCode{}).
		Where("code_hash = ?", hash).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
	return res.RowsAffected, res.Error
}

// DeleteExpired removes codes whose expiry_at passed.
func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expiry_at < ?", now).
		Delete(&models.PromoCode{})
	return res.RowsAffected, res.Error
}

// AddSubscriber inserts a newsletter subscriber; an existing email is left untouched.
func (r *Repository) AddSubscriber(ctx context.Context, email string) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(&models.NewsSubscriber{Email: email})
	return res.RowsAffected == 1, res.Error
}

func (r *Repository) SubscriberExists(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.NewsSubscriber{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}
