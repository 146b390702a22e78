package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	pendingPrefix   = "pending:"
	doneMarker      = "done"
	defaultClaimTTL = 2 * time.Minute
)

// DeliveryState says what a webhook delivery should do after Claim.
type DeliveryState int

const (
	// DeliveryClaimed means this delivery owns the event and must process it.
	DeliveryClaimed DeliveryState = iota
	// DeliveryInFlight means another delivery is processing the event right now.
	DeliveryInFlight
	// DeliveryDone means the event was already processed.
	DeliveryDone
)

type Claim struct {
	State   DeliveryState
	EventID string
	key     string
	token   string
}

type guardStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
	IdempotencyKey(scope, id string) string
}

// IdempotencyGuard dedupes Stripe redeliveries in two phases. A short-lived
// pending marker covers processing; only success replaces it with a
// long-lived done marker, so a crash mid-handler lets Stripe retry.
type IdempotencyGuard struct {
	store    guardStore
	ttl      time.Duration
	claimTTL time.Duration
	scope    string
}

func NewIdempotencyGuard(store guardStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	case strings.TrimSpace(scope) == "":
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, claimTTL: defaultClaimTTL, scope: scope}, nil
}

func (g *IdempotencyGuard) Claim(ctx context.Context, eventID string) (Claim, error) {
	if eventID == "" {
		return Claim{}, errors.New("event id is required")
	}
	c := Claim{EventID: eventID, key: g.store.IdempotencyKey(g.scope, eventID), token: uuid.NewString()}

	ok, err := g.store.SetNX(ctx, c.key, pendingPrefix+c.token, g.claimTTL)
	if err != nil {
		return Claim{}, fmt.Errorf("claim webhook event: %w", err)
	}
	if ok {
		c.State = DeliveryClaimed
		return c, nil
	}

	current, err := g.store.Get(ctx, c.key)
	switch {
	case errors.Is(err, goredis.Nil):
		// The marker expired between SetNX and Get; let Stripe come back.
		c.State = DeliveryInFlight
	case err != nil:
		return Claim{}, fmt.Errorf("read webhook marker: %w", err)
	case current == doneMarker:
		c.State = DeliveryDone
	default:
		c.State = DeliveryInFlight
	}
	return c, nil
}

// Complete records the event as processed for the guard's ttl.
func (g *IdempotencyGuard) Complete(ctx context.Context, c Claim) error {
	if c.State != DeliveryClaimed {
		return nil
	}
	return g.store.Set(ctx, c.key, doneMarker, g.ttl)
}

// Release drops a pending claim so the next redelivery is processed. It never
// removes a marker owned by another delivery.
func (g *IdempotencyGuard) Release(ctx context.Context, c Claim) error {
	if c.State != DeliveryClaimed {
		return nil
	}
	_, err := g.store.CompareAndDelete(ctx, c.key, pendingPrefix+c.token)
	return err
}
