package grpcsvc_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	grpcsvc "github.com/vladislavdragonenkov/erp-orders/internal/service/grpc"
)

func TestCatalogService_Lifecycle(t *testing.T) {
	env := newTestServer(t)
	ctx := context.Background()

	product := seedProduct(t, env, "SKU-1", "19.999", 4)
	assert.Equal(t, "20.00", product.Price)
	assert.True(t, product.Active)

	_, err := env.catalog.CreateProduct(ctx, &grpcsvc.CreateProductRequest{Name: "Copy", SKU: "SKU-1", Price: "1.00"})
	requireCode(t, err, codes.AlreadyExists)

	_, err = env.catalog.CreateProduct(ctx, &grpcsvc.CreateProductRequest{Name: "Bad", SKU: "SKU-2", Price: "abc"})
	requireCode(t, err, codes.InvalidArgument)

	_, err = env.catalog.CreateProduct(ctx, &grpcsvc.CreateProductRequest{Name: "Neg", SKU: "SKU-3", Price: "1.00", Stock: -1})
	requireCode(t, err, codes.InvalidArgument)

	name := "Renamed"
	price := "25.50"
	updated, err := env.catalog.UpdateProduct(ctx, &grpcsvc.UpdateProductRequest{ProductID: product.ID, Name: &name, Price: &price})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Product.Name)
	assert.Equal(t, "25.50", updated.Product.Price)
	assert.Equal(t, 4, updated.Product.Stock)

	adjusted, err := env.catalog.AdjustStock(ctx, &grpcsvc.AdjustStockRequest{ProductID: product.ID, Delta: 6, Reason: "restock"})
	require.NoError(t, err)
	assert.Equal(t, 10, adjusted.Product.Stock)

	_, err = env.catalog.AdjustStock(ctx, &grpcsvc.AdjustStockRequest{ProductID: product.ID, Delta: -11})
	requireCode(t, err, codes.FailedPrecondition)

	_, err = env.catalog.GetProduct(ctx, &grpcsvc.GetProductRequest{ProductID: "missing"})
	requireCode(t, err, codes.NotFound)

	_, err = env.catalog.GetProduct(ctx, &grpcsvc.GetProductRequest{})
	requireCode(t, err, codes.InvalidArgument)
}
