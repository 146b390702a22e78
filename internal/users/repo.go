package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/storefront-backend/pkg/db/types"
)

// Repository exposes user-related persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
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

// Create inserts a new user and returns the persisted model.
func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByEmail retrieves the user matching the provided email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateLastLogin refreshes the user's last_login_at timestamp.
func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.updateColumns(ctx, id, map[string]any{"last_login_at": at})
}

func (r *Repository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return r.updateColumns(ctx, id, map[string]any{"password_hash": hash})
}

func (r *Repository) MarkActivated(ctx context.Context, id uuid.UUID) error {
	return r.updateColumns(ctx, id, map[string]any{"is_activated": true})
}

func (r *Repository) UpdateOTPSentAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.updateColumns(ctx, id, map[string]any{"otp_sent_at": at})
}

// SaveProfile writes the editable profile fields of user.
func (r *Repository) SaveProfile(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).
		Model(&models.User{ID: user.ID}).
		Select("first_name", "last_name", "gender", "birth_date", "phone_number", "invoice_delivery", "address_list", "invoice_address").
		Updates(user).Error
}

func (r *Repository) SetNewsSubscriber(ctx context.Context, id, subscriberID uuid.UUID) error {
	return r.updateColumns(ctx, id, map[string]any{"news_subscriber_id": subscriberID})
}

// AppendOrder adds orderID to the user's order history. Appending an id that is
// already present is a no-op so a replayed checkout step stays idempotent.
func (r *Repository) AppendOrder(ctx context.Context, userID, orderID uuid.UUID) error {
	var user models.User
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "order_ids").
		First(&user, "id = ?", userID).Error
	if err != nil {
		return err
	}
	for _, existing := range user.OrderIDs {
		if existing == orderID {
			return nil
		}
	}
	ids := append(dbtypes.UUIDArray{}, user.OrderIDs...)
	ids = append(ids, orderID)
	return r.updateColumns(ctx, userID, map[string]any{"order_ids": ids})
}

func (r *Repository) updateColumns(ctx context.Context, id uuid.UUID, values map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumns(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
