package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/storefront-backend/pkg/db/types"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// PersonalInfo is the public identity block of a user.
type PersonalInfo struct {
	FirstName   string       `json:"firstName"`
	LastName    string       `json:"lastName"`
	Email       string       `json:"email"`
	Gender      enums.Gender `json:"gender"`
	BirthDate   *time.Time   `json:"birthDate"`
	PhoneNumber *string      `json:"phoneNumber"`
}

type Activation struct {
	IsActivated bool  `json:"isActivated"`
	OTPExpiryMs int64 `json:"otpExpiryMs"`
}

// UserPayload is the transport shape returned to the storefront; it never carries credentials.
type UserPayload struct {
	ID              uuid.UUID             `json:"_id"`
	PersonalInfo    PersonalInfo          `json:"personalInfo"`
	Activation      Activation            `json:"activation"`
	AddressList     types.AddressList     `json:"addressList"`
	InvoiceAddress  *types.Address        `json:"invoiceAddress"`
	InvoiceDelivery enums.InvoiceDelivery `json:"invoiceDelivery"`
	Orders          []uuid.UUID           `json:"orders"`
	AccessToken     string                `json:"accessToken,omitempty"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	OTPSecret    string
}

// FromModel builds the payload. otpPeriod converts the last OTP send time into an expiry.
func FromModel(u *models.User, otpPeriod time.Duration) *UserPayload {
	if u == nil {
		return nil
	}
	var expiry int64
	if u.OTPSentAt != nil && !u.IsActivated {
		expiry = u.OTPSentAt.Add(otpPeriod).UnixMilli()
	}
	addresses := u.AddressList
	if addresses.List == nil {
		addresses.List = []types.Address{}
	}
	return &UserPayload{
		ID: u.ID,
		PersonalInfo: PersonalInfo{
			FirstName:   u.FirstName,
			LastName:    u.LastName,
			Email:       u.Email,
			Gender:      u.Gender,
			BirthDate:   u.BirthDate,
			PhoneNumber: u.PhoneNumber,
		},
		Activation:      Activation{IsActivated: u.IsActivated, OTPExpiryMs: expiry},
		AddressList:     addresses,
		InvoiceAddress:  u.InvoiceAddress,
		InvoiceDelivery: u.InvoiceDelivery,
		Orders:          append([]uuid.UUID{}, u.OrderIDs...),
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	return &models.User{
		Email:           c.Email,
		PasswordHash:    c.PasswordHash,
		FirstName:       c.FirstName,
		LastName:        c.LastName,
		Gender:          enums.GenderMale,
		OTPSecret:       c.OTPSecret,
		InvoiceDelivery: enums.InvoiceDeliveryElectronic,
		AddressList:     types.AddressList{List: []types.Address{}},
		OrderIDs:        dbtypes.UUIDArray{},
	}
}
