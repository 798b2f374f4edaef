package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
	"github.com/vladislavdragonenkov/erp-orders/internal/service/catalog"
	grpcsvc "github.com/vladislavdragonenkov/erp-orders/internal/service/grpc"
	"github.com/vladislavdragonenkov/erp-orders/internal/service/orders"
	"github.com/vladislavdragonenkov/erp-orders/internal/storage/memory"
)

type apiEnv struct {
	router  http.Handler
	catalog *catalog.Service
}

func newAPI(t *testing.T, limiter *RateLimiter) apiEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	entry := logger.WithField("component", "test")

	store := memory.NewStore()
	users := memory.NewUserDirectory(domain.UserSummary{ID: "user-1", Email: "ann@example.com"})
	catalogService := catalog.NewService(store, nil, entry)

	router := NewRouter(Deps{
		Orders:      orders.NewService(store, orders.WithUserDirectory(users), orders.WithLogger(entry)),
		Catalog:     catalogService,
		Idempotency: memory.NewIdempotencyRepository(),
		Limiter:     limiter,
		Logger:      entry,
	})
	return apiEnv{router: router, catalog: catalogService}
}

func (e apiEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e apiEnv) seedProduct(t *testing.T, sku string, stock int) grpcsvc.Product {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/products", map[string]any{
		"name":  "Widget " + sku,
		"sku":   sku,
		"price": "10.00",
		"stock": stock,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var product grpcsvc.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &product))
	return product
}

func orderBody(productID string, qty int) map[string]any {
	return map[string]any{
		"user_id": "user-1",
		"items":   []map[string]any{{"product_id": productID, "quantity": qty}},
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func stockOf(t *testing.T, env apiEnv, id string) int {
	t.Helper()
	p, err := env.catalog.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestOrdersAPI_CreateGetAndCancel(t *testing.T) {
	env := newAPI(t, nil)
	product := env.seedProduct(t, "W-1", 5)

	rec := env.do(t, http.MethodPost, "/api/orders", orderBody(product.ID, 3), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[grpcsvc.Order](t, rec)
	assert.Equal(t, "pending", order.Status)
	assert.Equal(t, "30.00", order.Subtotal)
	assert.Equal(t, "3.00", order.TaxAmount)
	assert.Equal(t, "33.00", order.TotalAmount)
	assert.Equal(t, 2, stockOf(t, env, product.ID))

	rec = env.do(t, http.MethodGet, "/api/orders/"+order.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	details := decode[orderDetailsResponse](t, rec)
	assert.Equal(t, order.ID, details.Order.ID)
	assert.Equal(t, "ann@example.com", details.Owner.Email)

	rec = env.do(t, http.MethodPost, "/api/orders/"+order.ID+"/cancel", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", decode[grpcsvc.Order](t, rec).Status)
	assert.Equal(t, 5, stockOf(t, env, product.ID))

	rec = env.do(t, http.MethodPost, "/api/orders/"+order.ID+"/cancel", map[string]any{"reason": "again"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 5, stockOf(t, env, product.ID))

	rec = env.do(t, http.MethodGet, "/api/orders/"+order.ID+"/timeline", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	timeline := decode[[]grpcsvc.TimelineEvent](t, rec)
	require.Len(t, timeline, 2)
	assert.Equal(t, domain.TimelineOrderCreated, timeline[0].Type)
	assert.Equal(t, domain.TimelineOrderCanceled, timeline[1].Type)
}

func TestOrdersAPI_Errors(t *testing.T) {
	env := newAPI(t, nil)
	product := env.seedProduct(t, "W-1", 5)

	rec := env.do(t, http.MethodPost, "/api/orders", orderBody(product.ID, 6), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "insufficient_stock", body.Kind)
	assert.Equal(t, product.ID, body.ProductID)
	assert.Equal(t, 6, body.Requested)
	require.NotNil(t, body.Available)
	assert.Equal(t, 5, *body.Available)
	assert.Equal(t, 5, stockOf(t, env, product.ID))

	rec = env.do(t, http.MethodPost, "/api/orders", map[string]any{"user_id": "user-1", "items": []any{}}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/orders", orderBody("missing", 1), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/orders/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/orders", map[string]any{"unknown": true}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrdersAPI_UpdateStatus(t *testing.T) {
	env := newAPI(t, nil)
	product := env.seedProduct(t, "W-1", 5)
	order := decode[grpcsvc.Order](t, env.do(t, http.MethodPost, "/api/orders", orderBody(product.ID, 1), nil))

	rec := env.do(t, http.MethodPatch, "/api/orders/"+order.ID+"/status", map[string]any{"status": "shipped"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "shipped", decode[grpcsvc.Order](t, rec).Status)

	rec = env.do(t, http.MethodPatch, "/api/orders/"+order.ID+"/status", map[string]any{"status": "lost"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/orders/"+order.ID, nil, nil)
	assert.Equal(t, "shipped", decode[orderDetailsResponse](t, rec).Order.Status)
}

func TestOrdersAPI_ListForUser(t *testing.T) {
	env := newAPI(t, nil)
	product := env.seedProduct(t, "W-1", 10)
	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodPost, "/api/orders", orderBody(product.ID, 1), nil)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/api/users/user-1/orders?page=2&pageSize=2", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[ordersPageResponse](t, rec)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.PageSize)
	assert.Equal(t, 2, page.PageCount)
	assert.Len(t, page.Data, 1)

	rec = env.do(t, http.MethodGet, "/api/users/nobody/orders", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	empty := decode[ordersPageResponse](t, rec)
	assert.Equal(t, 0, empty.Total)
	assert.NotNil(t, empty.Data)

	rec = env.do(t, http.MethodGet, "/api/users/user-1/orders?page=x", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, query := range []string{
		"page=9223372036854775807",
		"page=9223372036854775807&pageSize=1",
		"page=9223372036854775807&pageSize=100000",
		"page=4",
	} {
		rec = env.do(t, http.MethodGet, "/api/users/user-1/orders?"+query, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code, query)
		beyond := decode[ordersPageResponse](t, rec)
		assert.Equal(t, 3, beyond.Total, query)
		assert.NotNil(t, beyond.Data, query)
		assert.Empty(t, beyond.Data, query)
	}
}

func TestOrdersAPI_RejectsOversizedBody(t *testing.T) {
	env := newAPI(t, nil)
	product := env.seedProduct(t, "W-1", 5)

	items := make([]map[string]any, 0, 30000)
	for i := 0; i < 30000; i++ {
		items = append(items, map[string]any{"product_id": product.ID, "quantity": 1})
	}
	big := map[string]any{"user_id": "user-1", "items": items}

	rec := env.do(t, http.MethodPost, "/api/orders", big, nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/orders", big, map[string]string{IdempotencyKeyHeader: "big-1"})
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
	assert.Equal(t, 5, stockOf(t, env, product.ID))

	rec = env.do(t, http.MethodPost, "/api/orders", orderBody(product.ID, 1), nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestOrdersAPI_IdempotentCreate(t *testing.T) {
	env := newAPI(t, nil)
	product := env.seedProduct(t, "W-1", 5)
	headers := map[string]string{IdempotencyKeyHeader: "key-1"}

	first := env.do(t, http.MethodPost, "/api/orders", orderBody(product.ID, 2), headers)
	require.Equal(t, http.StatusCreated, first.Code)

	second := env.do(t, http.MethodPost, "/api/orders", orderBody(product.ID, 2), headers)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 3, stockOf(t, env, product.ID))

	mismatch := env.do(t, http.MethodPost, "/api/orders", orderBody(product.ID, 1), headers)
	assert.Equal(t, http.StatusConflict, mismatch.Code)
	assert.Equal(t, 3, stockOf(t, env, product.ID))
}

func TestOrdersAPI_IdempotentFailureIsReplayed(t *testing.T) {
	env := newAPI(t, nil)
	product := env.seedProduct(t, "W-1", 1)
	headers := map[string]string{IdempotencyKeyHeader: "key-2"}

	first := env.do(t, http.MethodPost, "/api/orders", orderBody(product.ID, 2), headers)
	require.Equal(t, http.StatusConflict, first.Code)

	_, err := env.catalog.AdjustStock(context.Background(), product.ID, 5, "restock")
	require.NoError(t, err)

	second := env.do(t, http.MethodPost, "/api/orders", orderBody(product.ID, 2), headers)
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 6, stockOf(t, env, product.ID))
}

func TestProductsAPI_Lifecycle(t *testing.T) {
	env := newAPI(t, nil)
	product := env.seedProduct(t, "W-1", 5)
	assert.Equal(t, "10.00", product.Price)
	assert.True(t, product.Active)

	rec := env.do(t, http.MethodPost, "/api/products", map[string]any{
		"name": "Dup", "sku": "W-1", "price": "1.00", "stock": 1,
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/products", map[string]any{
		"name": "Bad", "sku": "W-2", "price": "ten", "stock": 1,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/products/"+product.ID, map[string]any{"price": "12.50", "active": false}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[grpcsvc.Product](t, rec)
	assert.Equal(t, "12.50", updated.Price)
	assert.False(t, updated.Active)

	rec = env.do(t, http.MethodPost, "/api/products/"+product.ID+"/stock", map[string]any{"delta": -6}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/products/"+product.ID+"/stock", map[string]any{"delta": 7, "reason": "restock"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 12, decode[grpcsvc.Product](t, rec).Stock)

	rec = env.do(t, http.MethodGet, "/api/products/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrItemsRequired, http.StatusBadRequest},
		{domain.ErrOrderNotFound, http.StatusNotFound},
		{&domain.InsufficientStockError{ProductID: "p"}, http.StatusConflict},
		{domain.ErrSKUAlreadyExists, http.StatusConflict},
		{domain.ErrOrderNotCancellable, http.StatusUnprocessableEntity},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, httpStatus(tt.err), "%v", tt.err)
	}
}

func TestWriteError_HidesInternalMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, logrus.NewEntry(logrus.New()), fmt.Errorf("dsn password=secret"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
}
