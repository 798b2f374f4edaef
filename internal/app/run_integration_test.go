package app

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	healthcheck "github.com/vladislavdragonenkov/erp-orders/internal/health"
	"github.com/vladislavdragonenkov/erp-orders/internal/service/catalog"
	grpcsvc "github.com/vladislavdragonenkov/erp-orders/internal/service/grpc"
	"github.com/vladislavdragonenkov/erp-orders/internal/service/orders"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.StorageDriver = StorageDriverMemory
	return cfg
}

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, testConfig())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_InvalidStorageDriver(t *testing.T) {
	cfg := testConfig()
	cfg.StorageDriver = "invalid-driver"

	err := Run(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "unsupported storage driver") {
		t.Fatalf("expected unsupported storage driver error, got %v", err)
	}
}

func TestRun_AddressInUse(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := testConfig()
	cfg.HTTPAddr = busy.Addr().String()

	err = Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen http")
}

// TestGRPCServer_OrderLifecycle прогоняет заказ через собранный gRPC-сервер.
func TestGRPCServer_OrderLifecycle(t *testing.T) {
	logger := log.WithField("test", "grpc-lifecycle")
	cfg := testConfig()

	deps, err := initRuntimeDependencies(context.Background(), cfg, logger)
	require.NoError(t, err)

	orderService := orders.NewService(deps.store, orders.WithUserDirectory(deps.users))
	catalogService := catalog.NewService(deps.store, nil, logger)
	server, healthServer := newGRPCServer(orderService, catalogService, deps, cfg, logger)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ctx := context.Background()
	hc, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: grpcsvc.OrderServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, hc.Status)

	catalogClient := grpcsvc.NewCatalogServiceClient(conn)
	product, err := catalogClient.CreateProduct(ctx, &grpcsvc.CreateProductRequest{
		Name: "Widget", SKU: "W-1", Price: "10.00", Stock: 5,
	})
	require.NoError(t, err)

	ordersClient := grpcsvc.NewOrderServiceClient(conn)
	createCtx := metadata.AppendToOutgoingContext(ctx, "idempotency-key", "lifecycle-1")
	created, err := ordersClient.CreateOrder(createCtx, &grpcsvc.CreateOrderRequest{
		UserID: "user-1",
		Items:  []grpcsvc.OrderItemInput{{ProductID: product.Product.ID, Quantity: 5}},
	})
	require.NoError(t, err)
	assert.Equal(t, "55.00", created.Order.TotalAmount)

	_, err = ordersClient.CreateOrder(metadata.AppendToOutgoingContext(ctx, "idempotency-key", "lifecycle-2"),
		&grpcsvc.CreateOrderRequest{
			UserID: "user-1",
			Items:  []grpcsvc.OrderItemInput{{ProductID: product.Product.ID, Quantity: 1}},
		})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	cancelCtx := metadata.AppendToOutgoingContext(ctx, "idempotency-key", "lifecycle-cancel")
	cancelled, err := ordersClient.CancelOrder(cancelCtx, &grpcsvc.CancelOrderRequest{OrderID: created.Order.ID})
	require.NoError(t, err)
	assert.Equal(t, "cancelled", cancelled.Order.Status)

	restocked, err := catalogClient.GetProduct(ctx, &grpcsvc.GetProductRequest{ProductID: product.Product.ID})
	require.NoError(t, err)
	assert.Equal(t, 5, restocked.Product.Stock)

	healthServer.Shutdown()
	hc, err = healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, hc.Status)
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("ERP_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("ERP_POSTGRES_TEST_DSN is not set")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn
	cfg.IdempotencyBackend = ""

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer func() { _ = deps.Close() }()

	require.NotNil(t, deps.store)
	require.NotNil(t, deps.idempotencyRepo)
	check := deps.checkers["storage"].Check(context.Background())
	assert.Equal(t, healthcheck.StatusHealthy, check.Status)
}
