package stripewebhook

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type transition struct {
	chargeID string
	to       enums.OrderStatus
}

type stubSettler struct {
	calls []transition
	err   error
}

func (s *stubSettler) TransitionByChargeID(ctx context.Context, chargeID string, to enums.OrderStatus) (*models.Order, error) {
	s.calls = append(s.calls, transition{chargeID: chargeID, to: to})
	if s.err != nil {
		return nil, s.err
	}
	return &models.Order{ID: uuid.New(), Status: to, PaymentChargeID: chargeID}, nil
}

func chargeEvent(t *testing.T, typ stripe.EventType, chargeID string) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(stripe.Charge{ID: chargeID})
	if err != nil {
		t.Fatalf("marshal charge: %v", err)
	}
	return &stripe.Event{Type: typ, Data: &stripe.EventData{Raw: raw}}
}

func TestService_ChargeEventsSettleOrders(t *testing.T) {
	cases := []struct {
		typ  stripe.EventType
		want enums.OrderStatus
	}{
		{stripe.EventTypeChargeSucceeded, enums.OrderStatusCompleted},
		{stripe.EventTypeChargeFailed, enums.OrderStatusCancelled},
		{stripe.EventTypeChargeRefunded, enums.OrderStatusCancelled},
	}
	for _, tc := range cases {
		settler := &stubSettler{}
		service, err := NewService(ServiceParams{Orders: settler})
		if err != nil {
			t.Fatalf("setup service: %v", err)
		}
		if err := service.HandleEvent(context.Background(), chargeEvent(t, tc.typ, "ch_1")); err != nil {
			t.Fatalf("%s: handle event: %v", tc.typ, err)
		}
		if len(settler.calls) != 1 || settler.calls[0] != (transition{chargeID: "ch_1", to: tc.want}) {
			t.Fatalf("%s: unexpected transitions %+v", tc.typ, settler.calls)
		}
	}
}

func TestService_MissingOrderRetriedOnlyForSuccess(t *testing.T) {
	settler := &stubSettler{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found for charge")}
	service, err := NewService(ServiceParams{Orders: settler})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	if err := service.HandleEvent(context.Background(), chargeEvent(t, stripe.EventTypeChargeSucceeded, "ch_2")); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found so the event is redelivered, got %v", err)
	}
	if err := service.HandleEvent(context.Background(), chargeEvent(t, stripe.EventTypeChargeRefunded, "ch_2")); err != nil {
		t.Fatalf("refund of a compensated checkout should be acknowledged, got %v", err)
	}
}

func TestService_StateConflictAcknowledged(t *testing.T) {
	settler := &stubSettler{err: pkgerrors.New(pkgerrors.CodeStateConflict, "order status cannot change")}
	service, _ := NewService(ServiceParams{Orders: settler})

	if err := service.HandleEvent(context.Background(), chargeEvent(t, stripe.EventTypeChargeRefunded, "ch_3")); err != nil {
		t.Fatalf("expected conflict to be acknowledged, got %v", err)
	}
}

func TestService_IgnoresUnrelatedEvents(t *testing.T) {
	settler := &stubSettler{}
	service, _ := NewService(ServiceParams{Orders: settler})

	event := &stripe.Event{Type: stripe.EventTypeCustomerCreated, Data: &stripe.EventData{Raw: []byte(`{}`)}}
	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(settler.calls) != 0 {
		t.Fatalf("expected no transitions, got %+v", settler.calls)
	}
	if err := service.HandleEvent(context.Background(), &stripe.Event{}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for empty event, got %v", err)
	}
}
