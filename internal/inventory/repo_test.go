package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestDecrementIsConditional(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	variant := dbtest.SeedVariant(t, conn, dbtest.VariantSeed{
		Price: "50.00",
		Sizes: []models.VariantSize{{Size: "M", Count: 2}},
	})

	require.NoError(t, repo.Decrement(ctx, variant.ID, "M", 2))
	err := repo.Decrement(ctx, variant.ID, "M", 1)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	assert.Equal(t, 0, sizeCount(t, conn, variant.ID, "M"))
}

func TestDecrementRejectsUnknownSizeAndZeroQty(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	variant := dbtest.SeedVariant(t, conn, dbtest.VariantSeed{
		Price: "10",
		Sizes: []models.VariantSize{{Size: "S", Count: 5}},
	})

	assert.ErrorIs(t, repo.Decrement(ctx, variant.ID, "XL", 1), ErrInsufficientStock)
	assert.ErrorIs(t, repo.Decrement(ctx, variant.ID, "S", 0), ErrInsufficientStock)
	assert.Equal(t, 5, sizeCount(t, conn, variant.ID, "S"))
}

func TestCommitLinesMarksExhaustedVariantUnavailable(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	exhausted := dbtest.SeedVariant(t, conn, dbtest.VariantSeed{
		Price: "50",
		Sizes: []models.VariantSize{{Size: "M", Count: 1}, {Size: "L", Count: 0}},
	})
	remaining := dbtest.SeedVariant(t, conn, dbtest.VariantSeed{
		Price: "20",
		Sizes: []models.VariantSize{{Size: "M", Count: 3}},
	})

	err := conn.Transaction(func(tx *gorm.DB) error {
		return repo.WithTx(tx).CommitLines(ctx, []Line{
			{VariantID: exhausted.ID, Size: "M", Quantity: 1},
			{VariantID: remaining.ID, Size: "M", Quantity: 2},
		})
	})
	require.NoError(t, err)

	variants, err := repo.FindVariantsByIDs(ctx, []uuid.UUID{exhausted.ID, remaining.ID})
	require.NoError(t, err)
	require.Len(t, variants, 2)
	for _, v := range variants {
		switch v.ID {
		case exhausted.ID:
			assert.False(t, v.Available)
		case remaining.ID:
			assert.True(t, v.Available)
			size, ok := v.Size("M")
			require.True(t, ok)
			assert.Equal(t, 1, size.Count)
		}
	}
}

func TestCommitLinesRollsBackOnShortage(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	first := dbtest.SeedVariant(t, conn, dbtest.VariantSeed{
		Price: "50",
		Sizes: []models.VariantSize{{Size: "M", Count: 4}},
	})
	second := dbtest.SeedVariant(t, conn, dbtest.VariantSeed{
		Price: "50",
		Sizes: []models.VariantSize{{Size: "S", Count: 2}},
	})

	err := conn.Transaction(func(tx *gorm.DB) error {
		return repo.WithTx(tx).CommitLines(ctx, []Line{
			{VariantID: first.ID, Size: "M", Quantity: 1},
			{VariantID: second.ID, Size: "S", Quantity: 3},
		})
	})
	require.Error(t, err)

	var shortage *ShortageError
	require.True(t, errors.As(err, &shortage))
	require.Len(t, shortage.Lines, 1)
	assert.Equal(t, second.ID, shortage.Lines[0].VariantID)
	assert.Equal(t, 3, shortage.Lines[0].Quantity)

	assert.Equal(t, 4, sizeCount(t, conn, first.ID, "M"))
	assert.Equal(t, 2, sizeCount(t, conn, second.ID, "S"))
}

func TestRestockLinesReenablesVariant(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	variant := dbtest.SeedVariant(t, conn, dbtest.VariantSeed{
		Price: "50",
		Sizes: []models.VariantSize{{Size: "M", Count: 1}},
	})
	lines := []Line{{VariantID: variant.ID, Size: "M", Quantity: 1}}

	require.NoError(t, repo.CommitLines(ctx, lines))
	require.NoError(t, repo.RestockLines(ctx, lines))

	found, err := repo.FindVariant(ctx, variant.ProductID, variant.ID)
	require.NoError(t, err)
	assert.True(t, found.Available)
	assert.Equal(t, 1, sizeCount(t, conn, variant.ID, "M"))
}

func sizeCount(t *testing.T, conn *gorm.DB, variantID uuid.UUID, size string) int {
	t.Helper()
	var row models.VariantSize
	require.NoError(t, conn.Where("variant_id = ? AND size = ?", variantID, size).First(&row).Error)
	return row.Count
}
