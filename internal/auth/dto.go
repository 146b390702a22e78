package auth

import (
	"time"

	"github.com/angelmondragon/storefront-backend/internal/users"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
)

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest contains the payload required for creating a customer account.
type RegisterRequest struct {
	FirstName string `json:"firstName" validate:"required,notblank,max=64"`
	LastName  string `json:"lastName" validate:"required,notblank,max=64"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6,max=128"`
	Subscribe bool   `json:"subscribe"`
}

// Principal identifies the caller behind an access token.
type Principal struct {
	UserID   uuid.UUID
	AccessID string
}

// AuthResponse pairs the user payload with freshly minted tokens.
type AuthResponse struct {
	User         *users.UserPayload `json:"user"`
	AccessToken  string             `json:"accessToken"`
	RefreshToken string             `json:"refreshToken,omitempty"`
}

// TokenPair is returned by the refresh endpoint.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// OTPThrottled carries the moment the next verification mail may be requested.
type OTPThrottled struct {
	ReachedTime int64 `json:"reachedTime"`
}

type ResetPasswordRequest struct {
	Password     string  `json:"password" validate:"required,min=6,max=128"`
	PrevPassword *string `json:"prevPassword,omitempty"`
	RecoveryData *string `json:"recoveryData,omitempty"`
}

// UpdateProfileRequest replaces the editable profile blocks; nil blocks stay untouched.
type UpdateProfileRequest struct {
	PersonalInfo    *PersonalInfoInput     `json:"personalInfo,omitempty" validate:"omitempty"`
	AddressList     *types.AddressList     `json:"addressList,omitempty"`
	InvoiceAddress  *types.Address         `json:"invoiceAddress,omitempty"`
	InvoiceDelivery *enums.InvoiceDelivery `json:"invoiceDelivery,omitempty"`
	ChangePassword  *ChangePasswordInput   `json:"changePassword,omitempty" validate:"omitempty"`
}

type PersonalInfoInput struct {
	FirstName   string       `json:"firstName" validate:"required,notblank,max=64"`
	LastName    string       `json:"lastName" validate:"required,notblank,max=64"`
	Gender      enums.Gender `json:"gender" validate:"required"`
	BirthDate   *time.Time   `json:"birthDate,omitempty"`
	PhoneNumber *string      `json:"phoneNumber,omitempty" validate:"omitempty,e164"`
}

type ChangePasswordInput struct {
	PrevPassword string `json:"prevPassword" validate:"required"`
	NewPassword  string `json:"newPassword" validate:"required,min=6,max=128"`
}
