package catalog_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
	"github.com/vladislavdragonenkov/erp-orders/internal/service/catalog"
	"github.com/vladislavdragonenkov/erp-orders/internal/storage/memory"
)

func newService(store *memory.Store) *catalog.Service {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return catalog.NewService(store, nil, logger.WithField("component", "catalog-test"))
}

func TestCreateProduct(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newService(store)

	product, err := svc.CreateProduct(ctx, catalog.NewProduct{
		Name:  " Widget ",
		SKU:   "W-1",
		Price: decimal.RequireFromString("9.999"),
		Stock: 4,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, product.ID)
	assert.Equal(t, "Widget", product.Name)
	assert.True(t, product.Active)
	assert.True(t, product.Price.Equal(decimal.RequireFromString("10.00")))

	_, err = svc.CreateProduct(ctx, catalog.NewProduct{Name: "Other", SKU: "W-1"})
	require.ErrorIs(t, err, domain.ErrSKUAlreadyExists)

	_, err = svc.CreateProduct(ctx, catalog.NewProduct{Name: "Neg", SKU: "N-1", Stock: -1})
	require.ErrorIs(t, err, domain.ErrValidation)

	inactive := false
	hidden, err := svc.CreateProduct(ctx, catalog.NewProduct{Name: "Hidden", SKU: "H-1", Active: &inactive})
	require.NoError(t, err)
	assert.False(t, hidden.Active)
}

func TestUpdateProduct(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newService(store)

	first, err := svc.CreateProduct(ctx, catalog.NewProduct{Name: "A", SKU: "A-1", Stock: 3})
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, catalog.NewProduct{Name: "B", SKU: "B-1"})
	require.NoError(t, err)

	taken := "B-1"
	_, err = svc.UpdateProduct(ctx, first.ID, catalog.ProductPatch{SKU: &taken})
	require.ErrorIs(t, err, domain.ErrSKUAlreadyExists)

	name := "A renamed"
	price := decimal.RequireFromString("12.50")
	updated, err := svc.UpdateProduct(ctx, first.ID, catalog.ProductPatch{Name: &name, Price: &price})
	require.NoError(t, err)
	assert.Equal(t, "A renamed", updated.Name)
	assert.True(t, updated.Price.Equal(price))
	assert.Equal(t, 3, updated.Stock)

	_, err = svc.UpdateProduct(ctx, "missing", catalog.ProductPatch{Name: &name})
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestAdjustStock(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newService(store)

	product, err := svc.CreateProduct(ctx, catalog.NewProduct{Name: "A", SKU: "A-1", Stock: 2})
	require.NoError(t, err)

	restocked, err := svc.AdjustStock(ctx, product.ID, 5, "")
	require.NoError(t, err)
	assert.Equal(t, 7, restocked.Stock)

	_, err = svc.AdjustStock(ctx, product.ID, -8, "write-off")
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	got, err := svc.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Stock)

	pending := store.PendingMessages()
	require.Len(t, pending, 1)
	assert.Equal(t, domain.EventInventoryAdjusted, pending[0].EventType)

	_, err = svc.AdjustStock(ctx, "missing", 1, "")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
