package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

func newOrder(customerID uuid.UUID, number int64, chargeID string, status enums.OrderStatus) *models.Order {
	addr := types.Address{FirstName: "Ann", LastName: "Lee", PhoneNumber: "+380501112233", Street: "Main", City: "Kyiv", HomeNumber: "1", PostCode: 1001}
	return &models.Order{
		OrderNumber: number,
		CustomerID:  customerID,
		SagaID:      uuid.New(),
		Products: []types.OrderProduct{{
			VariantID: uuid.NewString(),
			Name:      "Runner",
			Price:     decimal.RequireFromString("50"),
			Currency:  "USD",
			Sizes:     []types.SizeQuantity{{Size: "M", Quantity: 1}},
		}},
		Status:            status,
		InvoiceAddress:    addr,
		DeliveryAddress:   addr,
		TotalAmount:       decimal.RequireFromString("55.00"),
		Currency:          "usd",
		TotalProductCount: 1,
		DeliveryType:      enums.DeliveryTypePost,
		PaymentChargeID:   chargeID,
		OrderDate:         time.Now().UTC(),
	}
}

func TestCreateAndFindByChargeID(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	customer := uuid.New()

	next, err := repo.NextOrderNumber(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, next)

	created, err := repo.Create(ctx, newOrder(customer, next, "ch_1", enums.OrderStatusCompleted))
	require.NoError(t, err)

	found, err := repo.FindByChargeID(ctx, "ch_1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "55", found.TotalAmount.String())
	require.Len(t, found.Products, 1)
	assert.Equal(t, "M", found.Products[0].Sizes[0].Size)
	assert.Equal(t, "Kyiv", found.DeliveryAddress.City)

	next, err = repo.NextOrderNumber(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, next)
}

func TestCreateRejectsDuplicateCharge(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	_, err := repo.Create(ctx, newOrder(uuid.New(), 1, "ch_dup", enums.OrderStatusCompleted))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newOrder(uuid.New(), 2, "ch_dup", enums.OrderStatusCompleted))
	require.Error(t, err)
	assert.True(t, dbpkg.IsUniqueViolation(err, ""))
}

func TestCreateInsideRolledBackTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	err := conn.Transaction(func(tx *gorm.DB) error {
		if _, err := repo.WithTx(tx).Create(ctx, newOrder(uuid.New(), 1, "ch_tx", enums.OrderStatusCompleted)); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	require.Error(t, err)

	_, err = repo.FindByChargeID(ctx, "ch_tx")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestListByCustomerPaginates(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	customer := uuid.New()

	for i := 1; i <= 3; i++ {
		order := newOrder(customer, int64(i), fmt.Sprintf("ch_%d", i), enums.OrderStatusCompleted)
		_, err := repo.Create(ctx, order)
		require.NoError(t, err)
		require.NoError(t, conn.Model(order).UpdateColumn("created_at", time.Date(2026, 1, i, 0, 0, 0, 0, time.UTC)).Error)
	}
	_, err := repo.Create(ctx, newOrder(uuid.New(), 4, "ch_other", enums.OrderStatusCompleted))
	require.NoError(t, err)

	first, err := repo.ListByCustomer(ctx, customer, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Orders, 2)
	assert.EqualValues(t, 3, first.Orders[0].OrderNumber)
	assert.EqualValues(t, 2, first.Orders[1].OrderNumber)
	require.NotEmpty(t, first.NextCursor)

	second, err := repo.ListByCustomer(ctx, customer, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Orders, 1)
	assert.EqualValues(t, 1, second.Orders[0].OrderNumber)
	assert.Empty(t, second.NextCursor)
}

func TestUpdateStatusIsCompareAndSet(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	order, err := repo.Create(ctx, newOrder(uuid.New(), 1, "ch_1", enums.OrderStatusPending))
	require.NoError(t, err)

	require.NoError(t, repo.UpdateStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusCompleted))
	err = repo.UpdateStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusCancelled)
	assert.ErrorIs(t, err, ErrStatusChanged)
}
