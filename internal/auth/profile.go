package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/users"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/security"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

func (s *service) UpdateProfile(ctx context.Context, userID uuid.UUID, req UpdateProfileRequest) (*users.UserPayload, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if info := req.PersonalInfo; info != nil {
		if !info.Gender.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid gender")
		}
		user.FirstName = strings.TrimSpace(info.FirstName)
		user.LastName = strings.TrimSpace(info.LastName)
		user.Gender = info.Gender
		user.BirthDate = info.BirthDate
		user.PhoneNumber = info.PhoneNumber
	}

	if list := req.AddressList; list != nil {
		for i, addr := range list.List {
			if err := addr.Validate(); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid address at index %d", i))
			}
		}
		if list.List == nil {
			list.List = []types.Address{}
		}
		if list.Selected < 0 || (len(list.List) > 0 && list.Selected >= len(list.List)) || (len(list.List) == 0 && list.Selected != 0) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "selected address out of range")
		}
		user.AddressList = *list
	}

	if addr := req.InvoiceAddress; addr != nil {
		if err := addr.Validate(); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid invoice address")
		}
		user.InvoiceAddress = addr
	}

	if delivery := req.InvoiceDelivery; delivery != nil {
		if !delivery.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid invoice delivery")
		}
		user.InvoiceDelivery = *delivery
	}

	if change := req.ChangePassword; change != nil {
		valid, err := security.VerifyPassword(change.PrevPassword, user.PasswordHash)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
		}
		if !valid {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "previous password is incorrect")
		}
		hash, err := security.HashPassword(change.NewPassword, s.passwordCfg)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid password")
		}
		if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update password")
		}
		user.PasswordHash = hash
	}

	if err := s.users.SaveProfile(ctx, user); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save profile")
	}
	return users.FromModel(user, s.otp.Period()), nil
}
