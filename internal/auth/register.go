package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/users"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/security"
)

const otpThrottledMessage = "please, wait some time"

// Register creates an inactive account, signs the caller in and mails the activation code.
func (s *service) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("user with email %s already exists", email))
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check user email")
	}

	passwordHash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	secret, err := s.otp.NewSecret(email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate otp secret")
	}

	user, err := s.users.Create(ctx, users.CreateUserDTO{
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		OTPSecret:    secret,
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("user with email %s already exists", email))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
	}

	ctx = s.logg.WithUserID(ctx, user.ID.String())
	if req.Subscribe && s.newsletter != nil {
		if _, err := s.newsletter.AddSubscriber(ctx, email); err != nil {
			s.logg.Error(ctx, "newsletter subscription failed", err)
		}
	}

	now := s.now().UTC()
	if _, err := s.tokens.SetNX(ctx, s.tokens.OTPThrottleKey(user.ID.String()), now.Unix(), s.otpCfg.ResendInterval); err != nil {
		s.logg.Error(ctx, "otp throttle unavailable", err)
	}
	if err := s.deliverOTP(ctx, user, now); err != nil {
		s.logg.Error(ctx, "verification mail failed", err)
	}

	return s.issueSession(ctx, user, now)
}

// SendOTP mails a fresh activation code, at most once per resend interval.
func (s *service) SendOTP(ctx context.Context, userID uuid.UUID) error {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsActivated {
		return pkgerrors.New(pkgerrors.CodeConflict, "account already activated")
	}

	now := s.now().UTC()
	key := s.tokens.OTPThrottleKey(user.ID.String())
	ok, err := s.tokens.SetNX(ctx, key, now.Unix(), s.otpCfg.ResendInterval)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "otp throttle")
	}
	if !ok {
		ttl, err := s.tokens.TTL(ctx, key)
		if err != nil || ttl < 0 {
			ttl = s.otpCfg.ResendInterval
		}
		return pkgerrors.New(pkgerrors.CodeRateLimit, otpThrottledMessage).
			WithDetails(OTPThrottled{ReachedTime: now.Add(ttl).UnixMilli()})
	}

	if err := s.deliverOTP(ctx, user, now); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send verification mail")
	}
	return nil
}

// Activate checks the passcode and reissues the access token on the same session.
func (s *service) Activate(ctx context.Context, principal Principal, code string) (*AuthResponse, error) {
	user, err := s.loadUser(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	if user.IsActivated {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "account already activated")
	}

	now := s.now().UTC()
	if !s.otp.Valid(code, user.OTPSecret, now) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid otp")
	}
	if err := s.users.MarkActivated(ctx, user.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "activate user")
	}
	user.IsActivated = true

	access, err := s.mintAccess(user, principal.AccessID, now)
	if err != nil {
		return nil, err
	}
	payload := users.FromModel(user, s.otp.Period())
	payload.AccessToken = access
	return &AuthResponse{User: payload, AccessToken: access}, nil
}

func (s *service) deliverOTP(ctx context.Context, user *models.User, now time.Time) error {
	code, err := s.otp.Code(user.OTPSecret, now)
	if err != nil {
		return err
	}
	if err := s.users.UpdateOTPSentAt(ctx, user.ID, now); err != nil {
		return err
	}
	user.OTPSentAt = &now

	return s.notifier.SendVerification(ctx, notifications.VerificationMail{
		Email:     user.Email,
		FirstName: user.FirstName,
		OTP:       code,
		Link:      s.clientURL + "/account/activate/" + code,
	})
}
