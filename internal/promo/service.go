package promo

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/security"
)

const (
	codeBytes          = 5
	expiryAfterMonths  = 5
	createCodePath     = "/api/promo/create/code"
	subscribedRedirect = "/subscribed"
)

// HashCode is the lookup key for a promo code. Only the hash is persisted.
func HashCode(code string) string {
	sum := md5.Sum([]byte(code))
	return hex.EncodeToString(sum[:])
}

// Discount is the result of a successful validation.
type Discount struct {
	CodeHash        string `json:"-"`
	PercentDiscount int    `json:"percentDiscount"`
}

// IssuedCode carries the plaintext code back to the caller exactly once.
type IssuedCode struct {
	Code            string    `json:"code"`
	EndDate         time.Time `json:"endDate"`
	PercentDiscount int       `json:"percentDiscount"`
}

type IssueInput struct {
	Email           string
	Code            string
	PercentDiscount *int
}

// Service is the promo code ledger.
type Service interface {
	Issue(ctx context.Context, input IssueInput) (*IssuedCode, error)
	Validate(ctx context.Context, code string) (*Discount, error)
	MarkUsed(ctx context.Context, code string) error
	MarkUsedByHash(ctx context.Context, tx *gorm.DB, hash string) error
	Invite(ctx context.Context, email string) error
	RedeemInvite(ctx context.Context, data string) (string, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo      *Repository
	TxRunner  txRunner
	Outbox    *outbox.Service
	Notifier  notifications.Notifier
	Cipher    *security.ParamsCipher
	Config    config.PromoConfig
	PublicURL string
	ClientURL string
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	repo      *Repository
	tx        txRunner
	outbox    *outbox.Service
	notifier  notifications.Notifier
	cipher    *security.ParamsCipher
	cfg       config.PromoConfig
	publicURL string
	clientURL string
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "promo repository required")
	case params.TxRunner == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox service required")
	case params.Notifier == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifier required")
	case params.Cipher == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "params cipher required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:      params.Repo,
		tx:        params.TxRunner,
		outbox:    params.Outbox,
		notifier:  params.Notifier,
		cipher:    params.Cipher,
		cfg:       params.Config,
		publicURL: strings.TrimRight(params.PublicURL, "/"),
		clientURL: strings.TrimRight(params.ClientURL, "/"),
		logg:      params.Logger,
		now:       now,
	}, nil
}

func (s *service) Issue(ctx context.Context, input IssueInput) (*IssuedCode, error) {
	email := normalizeEmail(input.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}

	existing, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup promo code")
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already subscribed")
	}

	plain := strings.TrimSpace(input.Code)
	if plain == "" {
		plain, err = randomCode()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate promo code")
		}
	}
	discount := s.cfg.SubscriptionPercentDiscount
	if input.PercentDiscount != nil {
		discount = *input.PercentDiscount
	}
	if discount < 0 || discount > 100 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "percent discount must be within [0, 100]")
	}

	now := s.now().UTC()
	record := &models.PromoCode{
		CodeHash:        HashCode(plain),
		Email:           email,
		PercentDiscount: discount,
		UsageLimit:      s.usageLimit(),
		StartDate:       now,
		EndDate:         now.Add(s.validity()),
		ExpiryAt:        now.AddDate(0, expiryAfterMonths, 0),
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, record); err != nil {
			return err
		}
		if _, err := repo.AddSubscriber(ctx, email); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPromoCodeIssued,
			AggregateType: enums.AggregatePromoCode,
			AggregateID:   record.ID,
			Version:       1,
			OccurredAt:    now,
			Data: payloads.PromoCodeIssuedEvent{
				PromoCodeID:     record.ID,
				Email:           email,
				PercentDiscount: discount,
				EndDate:         record.EndDate,
			},
		})
	})
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "email already subscribed")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create promo code")
	}

	return &IssuedCode{Code: plain, EndDate: record.EndDate, PercentDiscount: discount}, nil
}

func (s *service) Validate(ctx context.Context, code string) (*Discount, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "promo code is required")
	}
	hash := HashCode(code)
	record, err := s.repo.FindByHash(ctx, hash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup promo code")
	}
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "promo code not found")
	}
	if s.now().After(record.EndDate) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("promo code %s is no longer valid; it expired on %s", code, record.EndDate.UTC().Format(time.RFC1123)))
	}
	if record.UsageCount >= record.UsageLimit {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("promo code %s exceeded its usage limit", code))
	}
	return &Discount{CodeHash: hash, PercentDiscount: record.PercentDiscount}, nil
}

func (s *service) MarkUsed(ctx context.Context, code string) error {
	return s.markUsed(ctx, s.repo, HashCode(strings.TrimSpace(code)))
}

// MarkUsedByHash increments usage inside the caller's transaction.
func (s *service) MarkUsedByHash(ctx context.Context, tx *gorm.DB, hash string) error {
	return s.markUsed(ctx, s.repo.WithTx(tx), hash)
}

func (s *service) markUsed(ctx context.Context, repo *Repository, hash string) error {
	if hash == "" {
		return nil
	}
	rows, err := repo.IncrementUsage(ctx, hash)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment promo usage")
	}
	if rows == 0 {
		s.logg.Warn(s.logg.WithField(ctx, "code_hash", hash), "promo code vanished before usage was recorded")
	}
	return nil
}

type invitePayload struct {
	Email string `json:"email"`
}

func (s *service) Invite(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}

	subscribed, err := s.repo.SubscriberExists(ctx, email)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup subscriber")
	}
	existing, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup promo code")
	}
	if subscribed && existing != nil {
		return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("newsletter subscription for %s already exists", email))
	}

	data, err := s.cipher.Encrypt(invitePayload{Email: email})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encrypt invite params")
	}
	link := s.publicURL + createCodePath + "?" + url.Values{"data": {data}}.Encode()

	return s.notifier.SendPromoInvite(ctx, notifications.PromoInviteMail{
		Email:           email,
		PercentDiscount: s.cfg.SubscriptionPercentDiscount,
		Link:            link,
	})
}

// RedeemInvite opens an invite link, issues the code, mails it and returns the client redirect.
func (s *service) RedeemInvite(ctx context.Context, data string) (string, error) {
	var payload invitePayload
	if err := s.cipher.Decrypt(data, &payload); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid invite link")
	}

	issued, err := s.Issue(ctx, IssueInput{Email: payload.Email})
	if err != nil {
		return "", err
	}

	err = s.notifier.SendPromoCode(ctx, notifications.PromoCodeMail{
		Email:           normalizeEmail(payload.Email),
		Code:            issued.Code,
		PercentDiscount: issued.PercentDiscount,
		EndDate:         issued.EndDate,
	})
	if err != nil {
		s.logg.Error(ctx, "promo code mail failed", err)
	}
	return s.clientURL + subscribedRedirect, nil
}

func (s *service) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	deleted, err := s.repo.DeleteExpired(ctx, now)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "purge expired promo codes")
	}
	return deleted, nil
}

func (s *service) usageLimit() int {
	if s.cfg.UsageLimit <= 0 {
		return 1
	}
	return s.cfg.UsageLimit
}

func (s *service) validity() time.Duration {
	if s.cfg.Validity <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.cfg.Validity
}

func randomCode() (string, error) {
	buf := make([]byte, codeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
