package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

func TestServiceGetHidesOtherCustomersOrders(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc, err := NewService(repo)
	require.NoError(t, err)
	ctx := context.Background()

	owner := uuid.New()
	order, err := repo.Create(ctx, newOrder(owner, 1, "ch_1", enums.OrderStatusCompleted))
	require.NoError(t, err)

	got, err := svc.Get(ctx, owner, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = svc.Get(ctx, uuid.New(), order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = svc.Get(ctx, owner, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestServiceTransitionByChargeID(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc, err := NewService(repo)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = repo.Create(ctx, newOrder(uuid.New(), 1, "ch_pending", enums.OrderStatusPending))
	require.NoError(t, err)

	order, err := svc.TransitionByChargeID(ctx, "ch_pending", enums.OrderStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, order.Status)

	order, err = svc.TransitionByChargeID(ctx, "ch_pending", enums.OrderStatusCompleted)
	require.NoError(t, err, "re-applying the same status is a no-op")
	assert.Equal(t, enums.OrderStatusCompleted, order.Status)

	_, err = svc.TransitionByChargeID(ctx, "ch_pending", enums.OrderStatusCancelled)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)

	_, err = svc.TransitionByChargeID(ctx, "ch_missing", enums.OrderStatusCompleted)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestServiceListRejectsBadCursor(t *testing.T) {
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)

	_, err = svc.List(context.Background(), uuid.New(), paginationParams("!!!"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
}

func paginationParams(cursor string) pagination.Params {
	return pagination.Params{Limit: 10, Cursor: cursor}
}
