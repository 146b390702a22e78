package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/internal/users"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const orderNumberAttempts = 3

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type pricer interface {
	ComputePaymentDetails(ctx context.Context, cart pricing.Cart, promoCode string) (*pricing.PaymentDetails, error)
}

type paymentGateway interface {
	Charge(ctx context.Context, req payments.ChargeRequest) (*payments.ChargeResult, error)
	Refund(ctx context.Context, chargeID, idempotencyKey string) (*payments.RefundResult, error)
}

type promoLedger interface {
	MarkUsedByHash(ctx context.Context, tx *gorm.DB, hash string) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service executes checkout orchestration.
type Service interface {
	Execute(ctx context.Context, input CheckoutInput) (*CheckoutResult, error)
	// Resume continues a persisted saga from its recorded state.
	Resume(ctx context.Context, saga *models.CheckoutSaga) error
}

// CheckoutInput is one payment attempt for the signed-in customer.
type CheckoutInput struct {
	UserID         uuid.UUID
	Cart           pricing.Cart
	PaymentToken   string
	IdempotencyKey string
}

type ResultDetails struct {
	Currency   string          `json:"currency"`
	TotalCount int             `json:"totalCount"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

// CheckoutResult is returned once the order is persisted. Message carries the processor charge status.
type CheckoutResult struct {
	Message string        `json:"message"`
	OrderID uuid.UUID     `json:"orderId"`
	Details ResultDetails `json:"details"`
}

type ServiceParams struct {
	TxRunner  txRunner
	Sagas     Repository
	Users     *users.Repository
	Inventory *inventory.Repository
	Orders    orders.Repository
	Pricing   pricer
	Payments  paymentGateway
	Promos    promoLedger
	Outbox    outboxPublisher
	Notifier  notifications.Notifier
	Metrics   *metrics.CheckoutMetrics
	Config    config.CheckoutConfig
	StoreName string
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	tx        txRunner
	sagas     Repository
	users     *users.Repository
	inventory *inventory.Repository
	orders    orders.Repository
	pricing   pricer
	payments  paymentGateway
	promos    promoLedger
	outbox    outboxPublisher
	notifier  notifications.Notifier
	metrics   *metrics.CheckoutMetrics
	cfg       config.CheckoutConfig
	storeName string
	logg      *logger.Logger
	now       func() time.Time
	dispatch  func(func())
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.TxRunner == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Sagas == nil:
		return nil, fmt.Errorf("saga repository required")
	case params.Users == nil:
		return nil, fmt.Errorf("users repository required")
	case params.Inventory == nil:
		return nil, fmt.Errorf("inventory repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Pricing == nil:
		return nil, fmt.Errorf("pricing engine required")
	case params.Payments == nil:
		return nil, fmt.Errorf("payment gateway required")
	case params.Promos == nil:
		return nil, fmt.Errorf("promo ledger required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Notifier == nil:
		return nil, fmt.Errorf("notifier required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	cfg := params.Config
	if cfg.ReconcileStaleAfter <= 0 {
		cfg.ReconcileStaleAfter = 2 * time.Minute
	}
	if cfg.NotificationTimeout <= 0 {
		cfg.NotificationTimeout = 20 * time.Second
	}
	storeName := strings.TrimSpace(params.StoreName)
	if storeName == "" {
		storeName = "our store"
	}
	return &service{
		tx:        params.TxRunner,
		sagas:     params.Sagas,
		users:     params.Users,
		inventory: params.Inventory,
		orders:    params.Orders,
		pricing:   params.Pricing,
		payments:  params.Payments,
		promos:    params.Promos,
		outbox:    params.Outbox,
		notifier:  params.Notifier,
		metrics:   params.Metrics,
		cfg:       cfg,
		storeName: storeName,
		logg:      params.Logger,
		now:       now,
		dispatch:  func(fn func()) { go fn() },
	}, nil
}

func (s *service) Execute(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveDuration(time.Since(started)) }()

	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	key := strings.TrimSpace(input.IdempotencyKey)
	if key != "" {
		existing, err := s.sagas.FindByIdempotencyKey(ctx, input.UserID, key)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout")
		}
		if existing != nil {
			return s.replay(ctx, existing)
		}
	}

	user, err := s.loadCustomer(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	sourceToken, err := payments.ParseTokenizationToken(input.PaymentToken)
	if err != nil {
		return nil, err
	}

	details, err := s.pricing.ComputePaymentDetails(ctx, input.Cart, input.Cart.PromoCode())
	if err != nil {
		return nil, err
	}

	saga := s.newSaga(user.ID, key, sourceToken, input.Cart.DeliveryType, details)
	if err := s.sagas.Create(ctx, saga); err != nil {
		if key != "" && dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeIdempotency, err, "checkout already submitted with this idempotency key")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create checkout")
	}
	ctx = s.logg.WithSaga(ctx, saga.ID.String(), "")

	if err := s.charge(ctx, saga); err != nil {
		return nil, err
	}
	ctx = s.logg.WithSaga(ctx, saga.ID.String(), *saga.ChargeID)

	order, err := s.complete(ctx, saga, user)
	if err != nil {
		return nil, err
	}

	result := resultFor(saga, order)
	detached := context.WithoutCancel(ctx)
	s.dispatch(func() {
		notifyCtx, cancel := context.WithTimeout(detached, s.cfg.NotificationTimeout)
		defer cancel()
		if err := s.notify(notifyCtx, saga, user, order); err != nil {
			s.logg.Error(notifyCtx, "failed to close checkout after notification", err)
		}
	})
	return result, nil
}

func (s *service) Resume(ctx context.Context, saga *models.CheckoutSaga) error {
	if saga == nil {
		return nil
	}
	chargeID := ""
	if saga.Charged() {
		chargeID = *saga.ChargeID
	}
	ctx = s.logg.WithSaga(ctx, saga.ID.String(), chargeID)

	if saga.State == enums.CheckoutStateCompensating {
		return s.compensate(ctx, saga, failureReason(saga, "compensation retried"))
	}

	exhausted := s.cfg.ReconcileMaxAttempts > 0 && saga.AttemptCount > s.cfg.ReconcileMaxAttempts
	if exhausted {
		switch saga.State {
		case enums.CheckoutStateCharging:
			s.logg.Warn(ctx, "giving up on unconfirmed charge")
			return s.fail(ctx, saga, "unconfirmed", "payment could not be confirmed")
		case enums.CheckoutStateDecrementing, enums.CheckoutStatePersisting:
			return s.compensate(ctx, saga, "order could not be finalized")
		}
	}

	if saga.State == enums.CheckoutStateCharging {
		if err := s.charge(ctx, saga); err != nil {
			return err
		}
	}

	var order *models.Order
	if saga.State == enums.CheckoutStateDecrementing || saga.State == enums.CheckoutStatePersisting {
		var err error
		if order, err = s.complete(ctx, saga, nil); err != nil {
			return err
		}
	}

	if saga.State != enums.CheckoutStateNotifying {
		return nil
	}
	if order == nil {
		if saga.OrderID == nil {
			return s.fail(ctx, saga, "missing_order", "saga reached notification without an order")
		}
		var err error
		if order, err = s.orders.FindByID(ctx, *saga.OrderID); err != nil {
			return err
		}
	}
	return s.notify(ctx, saga, nil, order)
}

func (s *service) loadCustomer(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	if !user.IsActivated {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "account is not activated")
	}
	if !user.HasCheckoutAddresses() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery and invoice addresses are required")
	}
	return user, nil
}

func (s *service) newSaga(userID uuid.UUID, key, sourceToken string, deliveryType enums.DeliveryType, details *pricing.PaymentDetails) *models.CheckoutSaga {
	saga := &models.CheckoutSaga{
		ID:            uuid.New(),
		UserID:        userID,
		State:         enums.CheckoutStateCharging,
		PaymentToken:  sourceToken,
		AmountMinor:   details.AmountMinor(),
		Currency:      details.Currency,
		Description:   fmt.Sprintf("Payment for %d items at %s", details.TotalCount, s.storeName),
		DeliveryType:  deliveryType,
		Payment:       details.Summary(),
		NextAttemptAt: s.retryAt(),
	}
	if key != "" {
		saga.IdempotencyKey = &key
	}
	if details.PromoCodeHash != "" {
		hash := details.PromoCodeHash
		saga.PromoCodeHash = &hash
	}
	return saga
}

// charge runs CHARGING. The saga id is the processor idempotency key so a replay never charges twice.
func (s *service) charge(ctx context.Context, saga *models.CheckoutSaga) error {
	res, err := s.payments.Charge(ctx, payments.ChargeRequest{
		AmountMinor:    saga.AmountMinor,
		Currency:       saga.Currency,
		Description:    saga.Description,
		SourceToken:    saga.PaymentToken,
		IdempotencyKey: saga.ID.String(),
		Metadata: map[string]string{
			"saga_id": saga.ID.String(),
			"user_id": saga.UserID.String(),
		},
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
			s.logg.Error(ctx, "payment processor unavailable", err)
			s.recordFailure(ctx, saga, err)
			return err
		}
		reason := "rejected"
		if pkgerrors.IsCode(err, pkgerrors.CodePaymentDecline) {
			reason = "declined"
		}
		if failErr := s.fail(ctx, saga, reason, err.Error()); failErr != nil {
			s.logg.Error(ctx, "failed to close declined checkout", failErr)
		}
		return err
	}

	err = s.sagas.Transition(ctx, saga.ID, enums.CheckoutStateCharging, enums.CheckoutStateDecrementing, map[string]any{
		"charge_id":       res.ID,
		"charge_status":   res.Status,
		"next_attempt_at": s.retryAt(),
	})
	if err != nil {
		s.logg.Error(s.logg.WithSaga(ctx, saga.ID.String(), res.ID), "failed to record charge on checkout", err)
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment")
	}
	saga.ChargeID = &res.ID
	saga.ChargeStatus = &res.Status
	saga.State = enums.CheckoutStateDecrementing
	s.logg.Info(s.logg.WithSaga(ctx, saga.ID.String(), res.ID), "payment charged")
	return nil
}

// complete drives DECREMENTING and PERSISTING, leaving the saga in NOTIFYING.
func (s *service) complete(ctx context.Context, saga *models.CheckoutSaga, user *models.User) (*models.Order, error) {
	if saga.State == enums.CheckoutStateDecrementing {
		if err := s.decrement(ctx, saga); err != nil {
			return nil, err
		}
	}
	if saga.State != enums.CheckoutStatePersisting {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout is not ready to persist").
			WithDetails(map[string]any{"state": saga.State})
	}
	return s.persist(ctx, saga, user)
}

func (s *service) decrement(ctx context.Context, saga *models.CheckoutSaga) error {
	lines, err := linesFromSummary(saga.Payment)
	if err != nil {
		return s.postChargeFailure(ctx, saga, err)
	}

	applyPromo := saga.PromoCodeHash != nil && !saga.PromoApplied
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if !saga.StockCommitted {
			if err := s.inventory.WithTx(tx).CommitLines(ctx, lines); err != nil {
				return err
			}
		}
		fields := map[string]any{
			"stock_committed": true,
			"next_attempt_at": s.retryAt(),
		}
		if applyPromo {
			if err := s.promos.MarkUsedByHash(ctx, tx, *saga.PromoCodeHash); err != nil {
				return err
			}
			fields["promo_applied"] = true
		}
		return s.sagas.WithTx(tx).Transition(ctx, saga.ID, enums.CheckoutStateDecrementing, enums.CheckoutStatePersisting, fields)
	})

	var shortage *inventory.ShortageError
	switch {
	case errors.As(err, &shortage):
		return s.rejectShortage(ctx, saga, shortage)
	case err != nil:
		return s.postChargeFailure(ctx, saga, err)
	}

	saga.StockCommitted = true
	if applyPromo {
		saga.PromoApplied = true
	}
	saga.State = enums.CheckoutStatePersisting
	return nil
}

func (s *service) rejectShortage(ctx context.Context, saga *models.CheckoutSaga, shortage *inventory.ShortageError) error {
	mismatched := make([]pricing.MismatchedVariant, 0, len(shortage.Lines))
	for _, line := range shortage.Lines {
		mismatched = append(mismatched, pricing.MismatchedVariant{
			VariantID: line.VariantID.String(),
			Size:      line.Size,
			Quantity:  line.Quantity,
		})
	}
	s.logg.Warn(s.logg.WithField(ctx, "mismatched", len(mismatched)), "stock ran out after charge")

	message := "some items sold out while the payment was processed; the charge has been refunded"
	if err := s.compensate(ctx, saga, "insufficient stock"); err != nil {
		s.logg.Error(ctx, "refund after stock shortage failed; reconciler will retry", err)
		message = "some items sold out while the payment was processed; the charge will be refunded"
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, message).
		WithDetails(map[string]any{"mismatchedVariants": mismatched})
}

func (s *service) persist(ctx context.Context, saga *models.CheckoutSaga, user *models.User) (*models.Order, error) {
	if user == nil {
		loaded, err := s.users.FindByID(ctx, saga.UserID)
		if err != nil {
			return nil, s.postChargeFailure(ctx, saga, err)
		}
		user = loaded
	}
	delivery, ok := user.AddressList.Current()
	if !ok || user.InvoiceAddress == nil {
		return nil, s.postChargeFailure(ctx, saga, errors.New("customer addresses missing"))
	}

	var (
		order *models.Order
		err   error
	)
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var txErr error
			order, txErr = s.persistTx(ctx, tx, saga, *delivery, *user.InvoiceAddress)
			return txErr
		})
		if err == nil || !dbpkg.IsUniqueViolation(err, "") {
			break
		}
	}
	if err != nil {
		return nil, s.postChargeFailure(ctx, saga, err)
	}

	saga.OrderID = &order.ID
	saga.State = enums.CheckoutStateNotifying
	s.logg.Info(s.logg.WithField(ctx, "order_id", order.ID.String()), "order placed")
	return order, nil
}

func (s *service) persistTx(ctx context.Context, tx *gorm.DB, saga *models.CheckoutSaga, delivery, invoice types.Address) (*models.Order, error) {
	ordersRepo := s.orders.WithTx(tx)
	order, err := ordersRepo.FindByChargeID(ctx, *saga.ChargeID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if order == nil {
		number, err := ordersRepo.NextOrderNumber(ctx)
		if err != nil {
			return nil, err
		}
		status := enums.OrderStatusPending
		if saga.ChargeStatus != nil && *saga.ChargeStatus == "succeeded" {
			status = enums.OrderStatusCompleted
		}
		order, err = ordersRepo.Create(ctx, &models.Order{
			OrderNumber:       number,
			CustomerID:        saga.UserID,
			SagaID:            saga.ID,
			Products:          saga.Payment.Products,
			Status:            status,
			InvoiceAddress:    invoice,
			DeliveryAddress:   delivery,
			TotalAmount:       saga.Payment.TotalPrice,
			Currency:          saga.Currency,
			TotalProductCount: saga.Payment.TotalCount,
			DeliveryType:      saga.DeliveryType,
			PaymentChargeID:   *saga.ChargeID,
			OrderDate:         s.now().UTC(),
		})
		if err != nil {
			return nil, err
		}
	}

	if err := s.users.WithTx(tx).AppendOrder(ctx, saga.UserID, order.ID); err != nil {
		return nil, err
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: saga.UserID},
		Data: payloads.OrderPlacedEvent{
			OrderID:           order.ID,
			OrderNumber:       order.OrderNumber,
			CustomerID:        order.CustomerID,
			SagaID:            saga.ID,
			PaymentChargeID:   order.PaymentChargeID,
			TotalAmount:       order.TotalAmount,
			Currency:          order.Currency,
			TotalProductCount: order.TotalProductCount,
			DeliveryType:      string(order.DeliveryType),
			OrderDate:         order.OrderDate,
		},
		Version:    1,
		OccurredAt: order.OrderDate,
	}
	if err := s.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
		return nil, err
	}

	return order, s.sagas.WithTx(tx).Transition(ctx, saga.ID, enums.CheckoutStatePersisting, enums.CheckoutStateNotifying, map[string]any{
		"order_id":        order.ID,
		"next_attempt_at": s.retryAt(),
	})
}

// notify sends the order confirmation and closes the saga. Mail failures never reopen it.
func (s *service) notify(ctx context.Context, saga *models.CheckoutSaga, user *models.User, order *models.Order) error {
	if user == nil {
		loaded, err := s.users.FindByID(ctx, saga.UserID)
		if err != nil {
			s.logg.Error(ctx, "failed to load customer for order confirmation", err)
		}
		user = loaded
	}
	if user != nil {
		err := s.notifier.SendOrderDetails(ctx, notifications.OrderDetailsMail{
			Email:           user.Email,
			OrderNumber:     order.OrderNumber,
			OrderDate:       order.OrderDate,
			DeliveryType:    order.DeliveryType,
			DeliveryAddress: order.DeliveryAddress,
			Payment: types.PaymentSummary{
				TotalCount: order.TotalProductCount,
				TotalPrice: order.TotalAmount,
				Currency:   order.Currency,
				Products:   order.Products,
			},
		})
		if err != nil {
			s.logg.Error(ctx, "failed to send order confirmation", err)
		}
	}

	err := s.sagas.Transition(ctx, saga.ID, enums.CheckoutStateNotifying, enums.CheckoutStateDone, nil)
	if errors.Is(err, ErrSagaStateChanged) {
		return nil
	}
	if err != nil {
		return err
	}
	saga.State = enums.CheckoutStateDone
	s.metrics.IncOutcome(string(enums.CheckoutStateDone), "")
	return nil
}

// compensate refunds the charge and returns committed stock, then fails the saga.
// Partial failures leave the saga in COMPENSATING for the reconciler.
func (s *service) compensate(ctx context.Context, saga *models.CheckoutSaga, reason string) error {
	if saga.State != enums.CheckoutStateCompensating {
		err := s.sagas.Transition(ctx, saga.ID, saga.State, enums.CheckoutStateCompensating, map[string]any{
			"failure_reason":  reason,
			"next_attempt_at": s.retryAt(),
		})
		if err != nil {
			return err
		}
		saga.State = enums.CheckoutStateCompensating
		saga.FailureReason = &reason
	}

	var errs error
	restocked := false
	if saga.StockCommitted {
		if err := s.restock(ctx, saga); err != nil {
			errs = multierr.Append(errs, err)
		} else {
			restocked = true
		}
	}

	refundID := ""
	if saga.Charged() {
		refund, err := s.payments.Refund(ctx, *saga.ChargeID, "refund-"+saga.ID.String())
		if err != nil {
			errs = multierr.Append(errs, err)
		} else {
			refundID = refund.ID
		}
	}
	if errs != nil {
		s.recordFailure(ctx, saga, errs)
		return errs
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		fields := map[string]any{}
		if refundID != "" {
			fields["refund_id"] = refundID
		}
		if err := s.sagas.WithTx(tx).Transition(ctx, saga.ID, enums.CheckoutStateCompensating, enums.CheckoutStateFailed, fields); err != nil {
			return err
		}
		if !saga.Charged() {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCheckoutCompensated,
			AggregateType: enums.AggregateCheckoutSaga,
			AggregateID:   saga.ID,
			Actor:         &outbox.ActorRef{UserID: saga.UserID},
			Data: payloads.CheckoutCompensatedEvent{
				SagaID:      saga.ID,
				CustomerID:  saga.UserID,
				ChargeID:    *saga.ChargeID,
				RefundID:    refundID,
				AmountMinor: saga.AmountMinor,
				Currency:    saga.Currency,
				Restocked:   restocked,
				Reason:      failureReason(saga, reason),
			},
			Version: 1,
		})
	})
	if err != nil {
		s.recordFailure(ctx, saga, err)
		return err
	}
	if refundID != "" {
		saga.RefundID = &refundID
	}
	saga.State = enums.CheckoutStateFailed
	s.metrics.IncOutcome(string(enums.CheckoutStateFailed), "compensated")
	s.logg.Warn(s.logg.WithField(ctx, "refund_id", refundID), "checkout compensated")
	return nil
}

func (s *service) restock(ctx context.Context, saga *models.CheckoutSaga) error {
	lines, err := linesFromSummary(saga.Payment)
	if err != nil {
		return err
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.inventory.WithTx(tx).RestockLines(ctx, lines); err != nil {
			return err
		}
		return s.sagas.WithTx(tx).Transition(ctx, saga.ID, enums.CheckoutStateCompensating, enums.CheckoutStateCompensating, map[string]any{
			"stock_committed": false,
		})
	})
	if err != nil {
		return err
	}
	saga.StockCommitted = false
	return nil
}

func (s *service) fail(ctx context.Context, saga *models.CheckoutSaga, label, reason string) error {
	err := s.sagas.Transition(ctx, saga.ID, saga.State, enums.CheckoutStateFailed, map[string]any{
		"failure_reason": reason,
	})
	if err != nil {
		return err
	}
	saga.State = enums.CheckoutStateFailed
	saga.FailureReason = &reason
	s.metrics.IncOutcome(string(enums.CheckoutStateFailed), label)
	return nil
}

func (s *service) postChargeFailure(ctx context.Context, saga *models.CheckoutSaga, err error) error {
	s.logg.Error(ctx, "checkout step failed after charge", err)
	s.recordFailure(ctx, saga, err)
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "payment received but the order is still being finalized")
}

func (s *service) recordFailure(ctx context.Context, saga *models.CheckoutSaga, cause error) {
	if err := s.sagas.RecordFailure(ctx, saga.ID, cause.Error(), s.retryAt()); err != nil {
		s.logg.Error(ctx, "failed to record checkout failure", err)
	}
}

func (s *service) retryAt() time.Time {
	return s.now().UTC().Add(s.cfg.ReconcileStaleAfter)
}

func (s *service) replay(ctx context.Context, saga *models.CheckoutSaga) (*CheckoutResult, error) {
	if saga.OrderID != nil {
		order, err := s.orders.FindByID(ctx, *saga.OrderID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		return resultFor(saga, order), nil
	}
	if saga.State == enums.CheckoutStateFailed {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "checkout with this idempotency key already failed")
	}
	return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "checkout with this idempotency key is still processing").
		WithDetails(map[string]any{"state": saga.State})
}

func resultFor(saga *models.CheckoutSaga, order *models.Order) *CheckoutResult {
	status := ""
	if saga.ChargeStatus != nil {
		status = *saga.ChargeStatus
	}
	return &CheckoutResult{
		Message: status,
		OrderID: order.ID,
		Details: ResultDetails{
			Currency:   order.Currency,
			TotalCount: order.TotalProductCount,
			TotalPrice: order.TotalAmount,
		},
	}
}

func failureReason(saga *models.CheckoutSaga, fallback string) string {
	if saga.FailureReason != nil && *saga.FailureReason != "" {
		return *saga.FailureReason
	}
	return fallback
}

// linesFromSummary rebuilds stock lines from the persisted payment snapshot.
func linesFromSummary(summary types.PaymentSummary) ([]inventory.Line, error) {
	lines := []inventory.Line{}
	for _, product := range summary.Products {
		variantID, err := uuid.Parse(product.VariantID)
		if err != nil {
			return nil, fmt.Errorf("checkout snapshot: variant %q: %w", product.VariantID, err)
		}
		for _, size := range product.Sizes {
			lines = append(lines, inventory.Line{VariantID: variantID, Size: size.Size, Quantity: size.Quantity})
		}
	}
	return lines, nil
}
