// Package app собирает сервис заказов: хранилища, gRPC и REST API,
// outbox-публикацию и фоновые воркеры.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/erp-orders/internal/health"
	"github.com/vladislavdragonenkov/erp-orders/internal/httpx"
	"github.com/vladislavdragonenkov/erp-orders/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/erp-orders/internal/metrics"
	"github.com/vladislavdragonenkov/erp-orders/internal/service/catalog"
	grpcsvc "github.com/vladislavdragonenkov/erp-orders/internal/service/grpc"
	"github.com/vladislavdragonenkov/erp-orders/internal/service/idempotency"
	"github.com/vladislavdragonenkov/erp-orders/internal/service/orders"
	"github.com/vladislavdragonenkov/erp-orders/internal/service/outbox"
	"github.com/vladislavdragonenkov/erp-orders/internal/version"
)

const grpcStopTimeout = 5 * time.Second

// Run запускает сервис и блокируется до отмены ctx или фатальной ошибки.
// После отмены ctx возвращает ctx.Err().
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	producer, err := initKafkaProducer(cfg.KafkaBrokerList(), cfg.KafkaClientID, logger)
	if err != nil {
		// Заказы принимаются и без брокера: события копятся в outbox.
		producer = nil
	}
	defer closeKafka(producer, logger)

	orderMetrics := metrics.NewOrderMetrics()
	policy := domain.PolicyFor(cfg.StrictStatusTransitions)
	orderService := orders.NewService(deps.store,
		orders.WithUserDirectory(deps.users),
		orders.WithStatusPolicy(policy),
		orders.WithMetrics(orderMetrics),
		orders.WithLogger(logger.WithField("layer", "orders")),
	)
	catalogService := catalog.NewService(deps.store, orderMetrics, logger.WithField("layer", "catalog"))
	logger.WithField("status_policy", policy.Name()).Info("order service configured")

	grpcServer, grpcHealth := newGRPCServer(orderService, catalogService, deps, cfg, logger.WithField("layer", "grpc"))

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	for name, checker := range deps.checkers {
		healthHandler.RegisterChecker(name, checker)
	}

	limiter := httpx.NewRateLimiter(cfg.HTTPRateLimit, cfg.HTTPRateBurst)
	apiHandler := httpx.NewRouter(httpx.Deps{
		Orders:         orderService,
		Catalog:        catalogService,
		Idempotency:    deps.idempotencyRepo,
		IdempotencyTTL: cfg.IdempotencyTTL,
		Limiter:        limiter,
		Logger:         logger.WithField("layer", "http"),
		Timeout:        cfg.HTTPRequestTimeout,
		MaxBodyBytes:   int64(cfg.HTTPMaxBodyBytes),
	})

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}
	metricsLis, err := net.Listen("tcp", cfg.MetricsAddr)
	if err != nil {
		_ = grpcLis.Close()
		return fmt.Errorf("listen metrics %s: %w", cfg.MetricsAddr, err)
	}
	apiLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		_ = metricsLis.Close()
		return fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("получен сигнал остановки, останавливаем gRPC сервер")
		grpcHealth.Shutdown()
		stopGRPC(grpcServer, logger)
		return nil
	})

	metricsSrv := newMetricsServer(healthHandler)
	logger.Infof("метрики доступны по адресу %s/metrics", metricsLis.Addr())
	serveHTTP(gctx, g, metricsSrv, metricsLis, logger.WithField("server", "metrics"))

	apiSrv := newAPIServer(apiHandler, cfg.HTTPRequestTimeout)
	logger.Infof("REST API слушает %s", apiLis.Addr())
	serveHTTP(gctx, g, apiSrv, apiLis, logger.WithField("server", "api"))

	if limiter != nil {
		g.Go(func() error { return limiter.Run(gctx) })
	}

	if producer != nil {
		worker := newOutboxWorker(deps.outboxRepo, producer, cfg, logger.WithField("layer", "outbox"))
		g.Go(func() error {
			worker.Run(gctx)
			return nil
		})
	} else {
		logger.Warn("kafka is not configured, outbox events stay pending")
	}

	cleanup := idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("layer", "idempotency-cleanup")),
		idempotency.WithMetrics(metrics.NewCleanupMetricsWithRegisterer(prometheus.DefaultRegisterer)),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	g.Go(func() error {
		cleanup.Run(gctx)
		return nil
	})

	err = g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func newGRPCServer(
	orderService *orders.Service,
	catalogService *catalog.Service,
	deps *runtimeDependencies,
	cfg Config,
	logger *log.Entry,
) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(
		grpcMetrics.UnaryServerInterceptor(),
		grpcsvc.RecoveryUnaryInterceptor(logger),
	))
	grpcsvc.RegisterOrderServiceServer(server, grpcsvc.NewOrderService(orderService, logger,
		grpcsvc.WithIdempotency(deps.idempotencyRepo, cfg.IdempotencyTTL)))
	grpcsvc.RegisterCatalogServiceServer(server, grpcsvc.NewCatalogService(catalogService, logger))
	grpcMetrics.InitializeMetrics(server)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcsvc.OrderServiceName, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcsvc.CatalogServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	reflection.Register(server)
	return server, healthServer
}

func newOutboxWorker(repo domain.OutboxRepository, producer *kafka.Producer, cfg Config, logger *log.Entry) *outbox.Worker {
	router := kafka.DefaultTopicRouter()
	opts := []outbox.Option{
		outbox.WithLogger(logger),
		outbox.WithMetrics(metrics.NewOutboxMetricsWithRegisterer(prometheus.DefaultRegisterer)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if cfg.KafkaDLQTopic != "" {
		opts = append(opts, outbox.WithDLQPublisher(kafka.NewDLQPublisher(producer, cfg.KafkaDLQTopic, router)))
	}
	return outbox.NewWorker(repo, kafka.NewOutboxPublisher(producer, router), opts...)
}

// stopGRPC ждёт завершения активных вызовов, но не дольше grpcStopTimeout.
func stopGRPC(server *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(grpcStopTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}
