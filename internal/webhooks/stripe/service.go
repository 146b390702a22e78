package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type orderSettler interface {
	TransitionByChargeID(ctx context.Context, chargeID string, to enums.OrderStatus) (*models.Order, error)
}

type ServiceParams struct {
	Orders orderSettler
	Logger *logger.Logger
}

// Service settles orders from asynchronous charge outcomes reported by Stripe.
type Service struct {
	orders orderSettler
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	return &Service{orders: params.Orders, logg: params.Logger}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeChargeSucceeded:
		charge, err := decodeCharge(event)
		if err != nil {
			return err
		}
		// The order may not be persisted yet; NOT_FOUND makes Stripe redeliver.
		return s.settle(ctx, charge.ID, enums.OrderStatusCompleted, false)
	case stripe.EventTypeChargeFailed, stripe.EventTypeChargeRefunded:
		charge, err := decodeCharge(event)
		if err != nil {
			return err
		}
		// Compensated checkouts refund before any order exists.
		return s.settle(ctx, charge.ID, enums.OrderStatusCancelled, true)
	default:
		return nil
	}
}

func (s *Service) settle(ctx context.Context, chargeID string, to enums.OrderStatus, tolerateMissing bool) error {
	if chargeID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "charge id missing")
	}
	ctx = s.logWith(ctx, map[string]any{"charge_id": chargeID, "target_status": string(to)})

	order, err := s.orders.TransitionByChargeID(ctx, chargeID, to)
	switch {
	case err == nil:
		s.info(ctx, "order settled from charge event", order)
		return nil
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound) && tolerateMissing:
		s.info(ctx, "no order for charge event", nil)
		return nil
	case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
		if s.logg != nil {
			s.logg.Warn(ctx, "charge event ignored for settled order")
		}
		return nil
	default:
		return err
	}
}

func decodeCharge(event *stripe.Event) (*stripe.Charge, error) {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge event")
	}
	return &charge, nil
}

func (s *Service) logWith(ctx context.Context, fields map[string]any) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithFields(ctx, fields)
}

func (s *Service) info(ctx context.Context, msg string, order *models.Order) {
	if s.logg == nil {
		return
	}
	if order != nil {
		ctx = s.logg.WithField(ctx, "order_id", order.ID.String())
	}
	s.logg.Info(ctx, msg)
}
