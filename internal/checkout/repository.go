package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// ErrSagaStateChanged is returned when a conditional state update loses a race.
var ErrSagaStateChanged = errors.New("checkout saga state changed")

// Repository persists checkout sagas.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, saga *models.CheckoutSaga) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CheckoutSaga, error)
	FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.CheckoutSaga, error)
	Transition(ctx context.Context, id uuid.UUID, from, to enums.CheckoutState, fields map[string]any) error
	RecordFailure(ctx context.Context, id uuid.UUID, reason string, retryAt time.Time) error
	ListResumable(ctx context.Context, now time.Time, limit int) ([]models.CheckoutSaga, error)
	Claim(ctx context.Context, id uuid.UUID, attempt int, retryAt time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a saga repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, saga *models.CheckoutSaga) error {
	return r.db.WithContext(ctx).Create(saga).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CheckoutSaga, error) {
	var saga models.CheckoutSaga
	if err := r.db.WithContext(ctx).First(&saga, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &saga, nil
}

// FindByIdempotencyKey returns nil, nil when the user never used the key.
func (r *repository) FindByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.CheckoutSaga, error) {
	var saga models.CheckoutSaga
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&saga).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &saga, nil
}

// Transition moves a saga from one state to the next, writing fields alongside.
// It fails with ErrSagaStateChanged when the saga is no longer in from.
func (r *repository) Transition(ctx context.Context, id uuid.UUID, from, to enums.CheckoutState, fields map[string]any) error {
	values := map[string]any{
		"state":      to,
		"last_error": nil,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range fields {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutSaga{}).
		Where("id = ? AND state = ?", id, from).
		UpdateColumns(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSagaStateChanged
	}
	return nil
}

// RecordFailure keeps the saga in its state and schedules the next reconciler attempt.
func (r *repository) RecordFailure(ctx context.Context, id uuid.UUID, reason string, retryAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.CheckoutSaga{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"last_error":      reason,
			"next_attempt_at": retryAt,
			"updated_at":      time.Now().UTC(),
		}).Error
}

// ListResumable returns non-terminal sagas whose next attempt is due, oldest first.
func (r *repository) ListResumable(ctx context.Context, now time.Time, limit int) ([]models.CheckoutSaga, error) {
	if limit <= 0 {
		limit = 25
	}
	var sagas []models.CheckoutSaga
	err := r.db.WithContext(ctx).
		Where("state IN ? AND next_attempt_at <= ?", enums.ResumableCheckoutStates, now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&sagas).Error
	return sagas, err
}

// Claim bumps the attempt counter when it still equals attempt, so concurrent
// reconcilers never resume the same saga twice.
func (r *repository) Claim(ctx context.Context, id uuid.UUID, attempt int, retryAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutSaga{}).
		Where("id = ? AND attempt_count = ?", id, attempt).
		UpdateColumns(map[string]any{
			"attempt_count":   attempt + 1,
			"next_attempt_at": retryAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
