package registry

import (
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

func TestResolveDecodesTypedPayload(t *testing.T) {
	reg := newTestEventRegistry(t, config.PubSubConfig{OrdersTopic: "orders-topic"})
	orderID := uuid.New()
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload: mustEnvelope(t, payloads.OrderPlacedEvent{
			OrderID:         orderID,
			OrderNumber:     7,
			PaymentChargeID: "ch_123",
			TotalAmount:     decimal.RequireFromString("55.00"),
			Currency:        "EUR",
		}),
	}

	resolved, err := reg.Resolve(row)
	require.NoError(t, err)
	assert.Equal(t, "orders-topic", resolved.Descriptor.Topic)
	payload, ok := resolved.Payload.(*payloads.OrderPlacedEvent)
	require.True(t, ok, "unexpected payload type %T", resolved.Payload)
	assert.Equal(t, "ch_123", payload.PaymentChargeID)
	assert.True(t, payload.TotalAmount.Equal(decimal.NewFromInt(55)))

	attrs := resolved.Attributes(row)
	assert.Equal(t, resolved.Envelope.EventID, attrs["event_id"])
	assert.Equal(t, "order_placed", attrs["event_type"])
	assert.Equal(t, orderID.String(), attrs["aggregate_id"])
	assert.Equal(t, "1", attrs["schema_version"])
	assert.NotEmpty(t, attrs["occurred_at"])
}

func TestResolveRejectsMalformedRows(t *testing.T) {
	reg := newTestEventRegistry(t, config.PubSubConfig{OrdersTopic: "orders-topic"})
	valid := mustEnvelope(t, payloads.CheckoutCompensatedEvent{ChargeID: "ch_1"})

	cases := map[string]models.OutboxEvent{
		"unknown type":         {EventType: "reservation_released", AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: valid},
		"aggregate mismatch":   {EventType: enums.EventOrderPlaced, AggregateType: enums.AggregatePromoCode, AggregateID: uuid.New(), Payload: valid},
		"missing aggregate id": {EventType: enums.EventCheckoutCompensated, AggregateType: enums.AggregateCheckoutSaga, Payload: valid},
		"null payload":         {EventType: enums.EventCheckoutCompensated, AggregateType: enums.AggregateCheckoutSaga, AggregateID: uuid.New(), Payload: mustEnvelope(t, nil)},
		"broken envelope":      {EventType: enums.EventCheckoutCompensated, AggregateType: enums.AggregateCheckoutSaga, AggregateID: uuid.New(), Payload: json.RawMessage(`{"data":`)},
		"wrong payload shape":  {EventType: enums.EventCheckoutCompensated, AggregateType: enums.AggregateCheckoutSaga, AggregateID: uuid.New(), Payload: mustEnvelope(t, []int{1})},
	}
	for name, row := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(row)
			require.Error(t, err)
			assert.True(t, IsNonRetryable(err))
		})
	}
}

func TestPromoTopicOverride(t *testing.T) {
	shared := newTestEventRegistry(t, config.PubSubConfig{OrdersTopic: "orders"})
	assert.Equal(t, []string{"orders"}, shared.Topics())

	split := newTestEventRegistry(t, config.PubSubConfig{OrdersTopic: "orders", PromoTopic: "promos"})
	topics := split.Topics()
	sort.Strings(topics)
	assert.Equal(t, []string{"orders", "promos"}, topics)

	row := models.OutboxEvent{
		EventType:     enums.EventPromoCodeIssued,
		AggregateType: enums.AggregatePromoCode,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, payloads.PromoCodeIssuedEvent{Email: "a@b.c", PercentDiscount: 15}),
	}
	resolved, err := split.Resolve(row)
	require.NoError(t, err)
	assert.Equal(t, "promos", resolved.Descriptor.Topic)
}

func TestNonRetryableError(t *testing.T) {
	cause := errors.New("boom")
	err := NewNonRetryableError(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "non-retryable error", NonRetryableError{}.Error())
	assert.False(t, IsNonRetryable(cause))
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{})
	assert.Error(t, err)
}

func newTestEventRegistry(t *testing.T, cfg config.PubSubConfig) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(cfg)
	require.NoError(t, err)
	return reg
}

func mustEnvelope(t *testing.T, payload any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	require.NoError(t, err)
	return envelope
}
