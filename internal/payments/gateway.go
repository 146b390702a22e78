package payments

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Gateway is the payment adapter used by checkout. Processor calls run through a
// circuit breaker; declines count as successful calls so they never open it.
type Gateway struct {
	processor Processor
	breaker   *gobreaker.CircuitBreaker[any]
	timeout   time.Duration
	logg      *logger.Logger
}

func NewGateway(processor Processor, cfg config.CheckoutConfig, logg *logger.Logger) (*Gateway, error) {
	if processor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment processor required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	threshold := cfg.BreakerFailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "payment-processor",
		Timeout: cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			var decline *DeclineError
			return err == nil || errors.As(err, &decline)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logg.Warn(logg.WithFields(context.Background(), map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}), "payment circuit breaker state changed")
		},
	})
	return &Gateway{processor: processor, breaker: breaker, timeout: cfg.PaymentTimeout, logg: logg}, nil
}

// Charge creates a charge. Declines surface as PAYMENT_DECLINED with {code, message};
// everything else is a DEPENDENCY error.
func (g *Gateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if req.AmountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge amount must be positive")
	}
	if strings.TrimSpace(req.SourceToken) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment token is required")
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	out, err := g.breaker.Execute(func() (any, error) {
		return g.processor.CreateCharge(ctx, req)
	})
	if err != nil {
		return nil, g.mapError(err, "charge payment")
	}
	return out.(*ChargeResult), nil
}

// Refund returns the full amount of a charge.
func (g *Gateway) Refund(ctx context.Context, chargeID, idempotencyKey string) (*RefundResult, error) {
	if strings.TrimSpace(chargeID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge id is required")
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	out, err := g.breaker.Execute(func() (any, error) {
		return g.processor.CreateRefund(ctx, chargeID, idempotencyKey)
	})
	if err != nil {
		return nil, g.mapError(err, "refund payment")
	}
	return out.(*RefundResult), nil
}

func (g *Gateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *Gateway) mapError(err error, action string) error {
	var decline *DeclineError
	if errors.As(err, &decline) {
		return pkgerrors.Wrap(pkgerrors.CodePaymentDecline, err, decline.Message).WithDetails(map[string]any{
			"code":    decline.Code,
			"message": decline.Message,
		})
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment processor temporarily unavailable")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

// ParseTokenizationToken extracts the source id from a wallet tokenization token,
// which is itself a JSON document carrying {id}.
func ParseTokenizationToken(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment token is required")
	}
	var token struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "payment token is malformed")
	}
	if strings.TrimSpace(token.ID) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment token id is missing")
	}
	return token.ID, nil
}
