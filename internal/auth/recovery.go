package auth

import (
	"context"
	"errors"
	"net/url"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/notifications"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/security"
)

const (
	acceptRecoveryPath = "/api/user/accept/recovery"
	changeForgottenURL = "/account/changeforgotten/"
	recoveryGrantScope = "grant:"
)

type recoveryParams struct {
	Token string `json:"token"`
}

// SendRecovery mails a single-use recovery link. Unknown emails succeed silently.
func (s *service) SendRecovery(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Debug(ctx, "recovery requested for unknown email")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}

	token := uuid.NewString()
	if err := s.tokens.Set(ctx, s.tokens.RecoveryKey(token), user.ID.String(), s.recovery.LinkTTL); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store recovery token")
	}
	data, err := s.cipher.Encrypt(recoveryParams{Token: token})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encrypt recovery params")
	}

	err = s.notifier.SendRecovery(ctx, notifications.RecoveryMail{
		Email:     user.Email,
		Link:      s.publicURL + acceptRecoveryPath + "?" + url.Values{"data": {data}}.Encode(),
		ExpiresAt: s.now().UTC().Add(s.recovery.LinkTTL),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send recovery mail")
	}
	return nil
}

// AcceptRecovery consumes the link token, opens a session and returns the client redirect
// that carries a short lived grant for ResetPassword.
func (s *service) AcceptRecovery(ctx context.Context, data string) (string, error) {
	var params recoveryParams
	if err := s.cipher.Decrypt(data, &params); err != nil || params.Token == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid recovery link")
	}

	raw, err := s.tokens.GetDel(ctx, s.tokens.RecoveryKey(params.Token))
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "recovery link expired")
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read recovery token")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid recovery link")
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return "", err
	}

	grant := uuid.NewString()
	if err := s.tokens.Set(ctx, s.tokens.RecoveryKey(recoveryGrantScope+grant), user.ID.String(), s.recovery.SessionTTL); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store recovery grant")
	}
	grantData, err := s.cipher.Encrypt(recoveryParams{Token: grant})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encrypt recovery grant")
	}

	auth, err := s.issueSession(ctx, user, s.now().UTC())
	if err != nil {
		return "", err
	}
	return s.clientURL + changeForgottenURL + url.PathEscape(auth.AccessToken) + "?" + url.Values{"data": {grantData}}.Encode(), nil
}

// ResetPassword requires either the current password or a recovery grant, then replaces the
// caller's session.
func (s *service) ResetPassword(ctx context.Context, principal Principal, req ResetPasswordRequest) (*AuthResponse, error) {
	user, err := s.loadUser(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}

	switch {
	case req.RecoveryData != nil && *req.RecoveryData != "":
		if err := s.consumeGrant(ctx, *req.RecoveryData, user.ID); err != nil {
			return nil, err
		}
	case req.PrevPassword != nil:
		valid, err := security.VerifyPassword(*req.PrevPassword, user.PasswordHash)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
		}
		if !valid {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "previous password is incorrect")
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "prevPassword or recoveryData is required")
	}

	hash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid password")
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update password")
	}
	user.PasswordHash = hash

	if principal.AccessID != "" {
		if err := s.session.Revoke(ctx, principal.AccessID); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "revoke session after password reset failed")
		}
	}
	return s.issueSession(ctx, user, s.now().UTC())
}

func (s *service) consumeGrant(ctx context.Context, data string, userID uuid.UUID) error {
	var params recoveryParams
	if err := s.cipher.Decrypt(data, &params); err != nil || params.Token == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid recovery data")
	}
	owner, err := s.tokens.GetDel(ctx, s.tokens.RecoveryKey(recoveryGrantScope+params.Token))
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return pkgerrors.New(pkgerrors.CodeValidation, "recovery session expired")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read recovery grant")
	}
	if owner != userID.String() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "recovery session belongs to another account")
	}
	return nil
}
