package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

func newSaga(state enums.CheckoutState, due time.Time) *models.CheckoutSaga {
	return &models.CheckoutSaga{
		UserID:        uuid.New(),
		State:         state,
		PaymentToken:  "tok_visa",
		AmountMinor:   5500,
		Currency:      "usd",
		Description:   "Payment for 1 items at VitaVibe",
		DeliveryType:  enums.DeliveryTypePost,
		Payment:       types.PaymentSummary{TotalCount: 1, Currency: "usd"},
		NextAttemptAt: due,
	}
}

func TestSagaTransitionIsConditional(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	saga := newSaga(enums.CheckoutStateCharging, time.Now().UTC())
	require.NoError(t, repo.Create(ctx, saga))

	require.NoError(t, repo.Transition(ctx, saga.ID, enums.CheckoutStateCharging, enums.CheckoutStateDecrementing, map[string]any{
		"charge_id": "ch_1",
	}))
	err := repo.Transition(ctx, saga.ID, enums.CheckoutStateCharging, enums.CheckoutStateFailed, nil)
	assert.True(t, errors.Is(err, ErrSagaStateChanged))

	reloaded, err := repo.FindByID(ctx, saga.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.CheckoutStateDecrementing, reloaded.State)
	require.True(t, reloaded.Charged())
	assert.Equal(t, "ch_1", *reloaded.ChargeID)
}

func TestSagaFindByIdempotencyKeyScopedToUser(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	key := "key-1"
	saga := newSaga(enums.CheckoutStateCharging, time.Now().UTC())
	saga.IdempotencyKey = &key
	require.NoError(t, repo.Create(ctx, saga))

	found, err := repo.FindByIdempotencyKey(ctx, saga.UserID, key)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, saga.ID, found.ID)

	other, err := repo.FindByIdempotencyKey(ctx, uuid.New(), key)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestSagaListResumableSkipsTerminalAndFutureSagas(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	due := newSaga(enums.CheckoutStatePersisting, now.Add(-time.Minute))
	later := newSaga(enums.CheckoutStateCharging, now.Add(time.Minute))
	done := newSaga(enums.CheckoutStateDone, now.Add(-time.Hour))
	failed := newSaga(enums.CheckoutStateFailed, now.Add(-time.Hour))
	for _, s := range []*models.CheckoutSaga{due, later, done, failed} {
		require.NoError(t, repo.Create(ctx, s))
	}

	sagas, err := repo.ListResumable(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, sagas, 1)
	assert.Equal(t, due.ID, sagas[0].ID)
}

func TestSagaClaimOnlyOnce(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	now := time.Now().UTC()
	saga := newSaga(enums.CheckoutStateNotifying, now)
	require.NoError(t, repo.Create(ctx, saga))

	claimed, err := repo.Claim(ctx, saga.ID, 0, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.Claim(ctx, saga.ID, 0, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, claimed)

	reloaded, err := repo.FindByID(ctx, saga.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.AttemptCount)
}

func TestSagaRecordFailureKeepsState(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	saga := newSaga(enums.CheckoutStateCharging, time.Now().UTC())
	require.NoError(t, repo.Create(ctx, saga))

	require.NoError(t, repo.RecordFailure(ctx, saga.ID, "processor timeout", time.Now().UTC().Add(time.Minute)))
	reloaded, err := repo.FindByID(ctx, saga.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.CheckoutStateCharging, reloaded.State)
	require.NotNil(t, reloaded.LastError)
	assert.Equal(t, "processor timeout", *reloaded.LastError)
}
