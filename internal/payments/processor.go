package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/charge"
	"github.com/stripe/stripe-go/v84/refund"
)

// ChargeRequest is a fixed-amount charge against a tokenized payment source.
type ChargeRequest struct {
	AmountMinor    int64
	Currency       string
	Description    string
	SourceToken    string
	IdempotencyKey string
	Metadata       map[string]string
}

// ChargeResult is the processor's proof of payment.
type ChargeResult struct {
	ID            string
	Status        string
	AmountCharged int64
	Currency      string
}

// RefundResult identifies a refund issued against a charge.
type RefundResult struct {
	ID     string
	Status string
}

// Processor is the raw payment API. Implementations return *DeclineError for
// customer-side rejections and any other error for transport or processor faults.
type Processor interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	CreateRefund(ctx context.Context, chargeID, idempotencyKey string) (*RefundResult, error)
}

// DeclineError is a processor-level rejection of the payment itself.
type DeclineError struct {
	Code    string
	Message string
}

func (e *DeclineError) Error() string {
	return fmt.Sprintf("payment declined: %s: %s", e.Code, e.Message)
}

// StripeProcessor charges through the Stripe charges API. The API key is
// installed globally by pkg/stripe.NewClient.
type StripeProcessor struct{}

func NewStripeProcessor() *StripeProcessor {
	return &StripeProcessor{}
}

func (p *StripeProcessor) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	params := &stripe.ChargeParams{
		Amount:      stripe.Int64(req.AmountMinor),
		Currency:    stripe.String(req.Currency),
		Description: stripe.String(req.Description),
	}
	params.Context = ctx
	if err := params.SetSource(req.SourceToken); err != nil {
		return nil, &DeclineError{Code: "invalid_source", Message: err.Error()}
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	ch, err := charge.New(params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	return &ChargeResult{
		ID:            ch.ID,
		Status:        string(ch.Status),
		AmountCharged: ch.Amount,
		Currency:      string(ch.Currency),
	}, nil
}

func (p *StripeProcessor) CreateRefund(ctx context.Context, chargeID, idempotencyKey string) (*RefundResult, error) {
	params := &stripe.RefundParams{Charge: stripe.String(chargeID)}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	rf, err := refund.New(params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	return &RefundResult{ID: rf.ID, Status: string(rf.Status)}, nil
}

// classifyStripeError separates customer-side rejections from processor faults.
func classifyStripeError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return err
	}
	switch {
	case stripeErr.Type == stripe.ErrorTypeCard,
		stripeErr.HTTPStatusCode == http.StatusPaymentRequired,
		stripeErr.Type == stripe.ErrorTypeInvalidRequest && stripeErr.HTTPStatusCode < http.StatusInternalServerError:
		code := string(stripeErr.Code)
		if stripeErr.DeclineCode != "" {
			code = string(stripeErr.DeclineCode)
		}
		return &DeclineError{Code: code, Message: stripeErr.Msg}
	default:
		return err
	}
}
