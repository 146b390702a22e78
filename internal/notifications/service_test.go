package notifications

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/mailer"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type recordingSender struct {
	messages []mailer.Message
	failFor  string
}

func (r *recordingSender) Send(ctx context.Context, msg mailer.Message) error {
	r.messages = append(r.messages, msg)
	if r.failFor != "" && msg.To == r.failFor {
		return errors.New("smtp unavailable")
	}
	return nil
}

func newTestNotifier(t *testing.T, sender mailer.Sender, serverCopy string) Notifier {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}})
	notifier, err := NewService(sender, Branding{StoreName: "VitaVibe", Website: "https://shop.example.com", ServerCopy: serverCopy}, logg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return notifier
}

func TestNewServiceRequiresSender(t *testing.T) {
	if _, err := NewService(nil, Branding{}, logger.New(logger.Options{})); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestSendVerificationRendersOTPAndLink(t *testing.T) {
	sender := &recordingSender{}
	notifier := newTestNotifier(t, sender, "")

	err := notifier.SendVerification(context.Background(), VerificationMail{
		Email:     "ann@example.com",
		FirstName: "Ann",
		OTP:       "123456",
		Link:      "https://api.example.com/user/activate/123456",
	})
	if err != nil {
		t.Fatalf("send verification: %v", err)
	}
	if len(sender.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sender.messages))
	}
	msg := sender.messages[0]
	if msg.To != "ann@example.com" {
		t.Fatalf("unexpected recipient %q", msg.To)
	}
	for _, want := range []string{"123456", "Hi Ann", "https://api.example.com/user/activate/123456", "VitaVibe"} {
		if !strings.Contains(msg.HTML, want) {
			t.Fatalf("expected %q in body:\n%s", want, msg.HTML)
		}
	}
}

func TestSendOrderDetailsSendsServerCopy(t *testing.T) {
	sender := &recordingSender{}
	notifier := newTestNotifier(t, sender, "orders@shop.example.com")

	err := notifier.SendOrderDetails(context.Background(), orderMail())
	if err != nil {
		t.Fatalf("send order details: %v", err)
	}
	if len(sender.messages) != 2 {
		t.Fatalf("expected customer and server copy, got %d", len(sender.messages))
	}
	if sender.messages[1].To != "orders@shop.example.com" {
		t.Fatalf("unexpected server copy recipient %q", sender.messages[1].To)
	}
	body := sender.messages[0].HTML
	for _, want := range []string{"Order № 42", "Linen shirt", "M x 2", "55.00 USD", "Kyiv"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in body:\n%s", want, body)
		}
	}
	if sender.messages[0].Subject != sender.messages[1].Subject {
		t.Fatal("expected identical subjects for both copies")
	}
}

func TestSendOrderDetailsReportsServerCopyFailure(t *testing.T) {
	sender := &recordingSender{failFor: "orders@shop.example.com"}
	notifier := newTestNotifier(t, sender, "orders@shop.example.com")

	err := notifier.SendOrderDetails(context.Background(), orderMail())
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if len(sender.messages) != 2 {
		t.Fatalf("customer copy should still be attempted, got %d messages", len(sender.messages))
	}
}

func TestSendPromoCodeIncludesCodeAndDiscount(t *testing.T) {
	sender := &recordingSender{}
	notifier := newTestNotifier(t, sender, "")

	err := notifier.SendPromoCode(context.Background(), PromoCodeMail{
		Email:           "ann@example.com",
		Code:            "A1B2C3D4E5",
		PercentDiscount: 10,
		EndDate:         time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("send promo code: %v", err)
	}
	body := sender.messages[0].HTML
	if !strings.Contains(body, "A1B2C3D4E5") || !strings.Contains(body, "10% off") || !strings.Contains(body, "2026-03-08") {
		t.Fatalf("unexpected promo body:\n%s", body)
	}
}

func orderMail() OrderDetailsMail {
	return OrderDetailsMail{
		Email:        "ann@example.com",
		OrderNumber:  42,
		OrderDate:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		DeliveryType: enums.DeliveryTypePost,
		DeliveryAddress: types.Address{
			FirstName: "Ann", LastName: "Lee", PhoneNumber: "+380501112233",
			Street: "Khreshchatyk", City: "Kyiv", HomeNumber: "1", PostCode: 1001,
		},
		Payment: types.PaymentSummary{
			TotalCount: 2,
			TotalPrice: decimal.RequireFromString("55"),
			Currency:   "usd",
			Products: []types.OrderProduct{{
				Name:     "Linen shirt",
				Color:    "white",
				Price:    decimal.RequireFromString("25"),
				Currency: "usd",
				Sizes:    []types.SizeQuantity{{Size: "M", Quantity: 2}},
			}},
		},
	}
}
