package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dropsync-backend/pkg/db/dbtest"
	"github.com/angelmondragon/dropsync-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dropsync-backend/pkg/errors"
)

func TestRepositoryPriceAndStock(t *testing.T) {
	conn := dbtest.Open(t)
	store := NewRepository(conn)
	ctx := context.Background()

	productID := uuid.New()
	require.NoError(t, conn.Create(&models.CatalogProduct{
		ProductID: productID, SKU: "SKU-1", Name: "Mug",
		Price: decimal.RequireFromString("12.50"), StockQuantity: 4,
	}).Error)

	price, err := store.GetPrice(ctx, productID)
	require.NoError(t, err)
	require.True(t, price.Equal(decimal.RequireFromString("12.50")))

	require.NoError(t, store.SetPrice(ctx, productID, decimal.RequireFromString("13.005")))
	price, err = store.GetPrice(ctx, productID)
	require.NoError(t, err)
	require.Equal(t, "13.01", price.StringFixed(2))

	require.NoError(t, store.SetStock(ctx, productID, 9))
	stock, err := store.GetStock(ctx, productID)
	require.NoError(t, err)
	require.Equal(t, 9, stock)

	err = store.SetStock(ctx, productID, -1)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRepositoryMissingProduct(t *testing.T) {
	store := NewRepository(dbtest.Open(t))
	ctx := context.Background()

	_, err := store.GetPrice(ctx, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	err = store.SetStock(ctx, uuid.New(), 1)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRepositoryCategoryFilter(t *testing.T) {
	conn := dbtest.Open(t)
	store := NewRepository(conn)
	ctx := context.Background()

	shoes := "shoes"
	hats := "hats"
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	for _, p := range []models.CatalogProduct{
		{ProductID: a, SKU: "A", Name: "A", CategoryID: &shoes},
		{ProductID: b, SKU: "B", Name: "B", CategoryID: &hats},
		{ProductID: c, SKU: "C", Name: "C"},
	} {
		require.NoError(t, conn.Create(&p).Error)
	}

	category, err := store.CategoryOf(ctx, a)
	require.NoError(t, err)
	require.Equal(t, "shoes", *category)

	ids, err := store.FilterByCategory(ctx, []uuid.UUID{a, b, c}, "shoes")
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{a}, ids)
}
