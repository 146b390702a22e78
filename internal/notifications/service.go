package notifications

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/mailer"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Notifier renders and delivers customer-facing mail.
type Notifier interface {
	SendVerification(ctx context.Context, mail VerificationMail) error
	SendRecovery(ctx context.Context, mail RecoveryMail) error
	SendPromoInvite(ctx context.Context, mail PromoInviteMail) error
	SendPromoCode(ctx context.Context, mail PromoCodeMail) error
	SendOrderDetails(ctx context.Context, mail OrderDetailsMail) error
}

type VerificationMail struct {
	Email     string
	FirstName string
	OTP       string
	Link      string
}

type RecoveryMail struct {
	Email     string
	Link      string
	ExpiresAt time.Time
}

type PromoInviteMail struct {
	Email           string
	PercentDiscount int
	Link            string
}

type PromoCodeMail struct {
	Email           string
	Code            string
	PercentDiscount int
	EndDate         time.Time
}

// OrderDetailsMail goes to the customer and, when configured, to the shop inbox.
type OrderDetailsMail struct {
	Email           string
	OrderNumber     int64
	OrderDate       time.Time
	DeliveryType    enums.DeliveryType
	DeliveryAddress types.Address
	Payment         types.PaymentSummary
}

// Branding is the shop identity rendered into every mail.
type Branding struct {
	StoreName  string
	Website    string
	ServerCopy string
}

type service struct {
	sender   mailer.Sender
	branding Branding
	logg     *logger.Logger
}

type templateData struct {
	Brand   string
	Website string
	Data    any
}

// NewService wires the mail notifier.
func NewService(sender mailer.Sender, branding Branding, logg *logger.Logger) (Notifier, error) {
	if sender == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mail sender required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{sender: sender, branding: branding, logg: logg}, nil
}

func (s *service) SendVerification(ctx context.Context, mail VerificationMail) error {
	return s.deliver(ctx, mail.Email, "Verify your email", verificationMailTemplate, mail)
}

func (s *service) SendRecovery(ctx context.Context, mail RecoveryMail) error {
	return s.deliver(ctx, mail.Email, "Forgot your password?", recoveryMailTemplate, mail)
}

func (s *service) SendPromoInvite(ctx context.Context, mail PromoInviteMail) error {
	subject := fmt.Sprintf("Get %d%% off at %s", mail.PercentDiscount, s.branding.StoreName)
	return s.deliver(ctx, mail.Email, subject, promoInviteMailTemplate, mail)
}

func (s *service) SendPromoCode(ctx context.Context, mail PromoCodeMail) error {
	return s.deliver(ctx, mail.Email, "Your promo code", promoCodeMailTemplate, mail)
}

func (s *service) SendOrderDetails(ctx context.Context, mail OrderDetailsMail) error {
	subject := fmt.Sprintf("Order № %d", mail.OrderNumber)
	html, err := s.render(orderDetailsMailTemplate, mail)
	if err != nil {
		return err
	}

	ctx = s.logg.WithField(ctx, "order_number", mail.OrderNumber)
	err = s.send(ctx, mailer.Message{To: mail.Email, Subject: subject, HTML: html})
	if copyTo := strings.TrimSpace(s.branding.ServerCopy); copyTo != "" {
		err = multierr.Append(err, s.send(ctx, mailer.Message{To: copyTo, Subject: subject, HTML: html}))
	}
	return err
}

func (s *service) deliver(ctx context.Context, to, subject string, tmpl *template.Template, data any) error {
	html, err := s.render(tmpl, data)
	if err != nil {
		return err
	}
	return s.send(ctx, mailer.Message{To: to, Subject: subject, HTML: html})
}

func (s *service) render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	payload := templateData{Brand: s.branding.StoreName, Website: s.branding.Website, Data: data}
	if err := tmpl.ExecuteTemplate(&buf, "layout", payload); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render mail template")
	}
	return buf.String(), nil
}

func (s *service) send(ctx context.Context, msg mailer.Message) error {
	ctx = s.logg.WithFields(ctx, map[string]any{"to": msg.To, "subject": msg.Subject})
	if err := s.sender.Send(ctx, msg); err != nil {
		s.logg.Error(ctx, "mail delivery failed", err)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send mail")
	}
	s.logg.Info(ctx, "mail sent")
	return nil
}
