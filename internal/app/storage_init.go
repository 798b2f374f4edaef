package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/erp-orders/internal/health"
	"github.com/vladislavdragonenkov/erp-orders/internal/storage/memory"
	"github.com/vladislavdragonenkov/erp-orders/internal/storage/postgres"
	"github.com/vladislavdragonenkov/erp-orders/internal/storage/redis"
)

// runtimeDependencies: хранилища, выбранные конфигурацией.
type runtimeDependencies struct {
	store           domain.UnitOfWork
	users           domain.UserDirectory
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	checkers        map[string]healthcheck.Checker
	closers         []func() error
}

func (d *runtimeDependencies) addCloser(fn func() error) {
	d.closers = append(d.closers, fn)
}

// Close закрывает подключения в обратном порядке открытия.
func (d *runtimeDependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{checkers: make(map[string]healthcheck.Checker)}

	var pgStore *postgres.Store
	switch strings.ToLower(strings.TrimSpace(cfg.StorageDriver)) {
	case "", StorageDriverMemory:
		store := memory.NewStore()
		deps.store = store
		deps.outboxRepo = store.Outbox()
		deps.users = memory.NewUserDirectory()
		deps.checkers["storage"] = healthcheck.NewPingChecker("storage", store)
		logger.Info("using in-memory storage")
	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return nil, fmt.Errorf("postgres storage requires ERP_POSTGRES_DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		deps.addCloser(store.Close)

		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = deps.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}

		pgStore = store
		deps.store = store
		deps.outboxRepo = store.Outbox()
		deps.users = postgres.NewUserDirectory(store)
		deps.checkers["storage"] = healthcheck.NewPingChecker("storage", store)
		logger.Info("using postgres storage")
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if err := initIdempotency(ctx, cfg, deps, pgStore, logger); err != nil {
		_ = deps.Close()
		return nil, err
	}
	return deps, nil
}

func initIdempotency(ctx context.Context, cfg Config, deps *runtimeDependencies, pgStore *postgres.Store, logger *log.Entry) error {
	backend := strings.ToLower(strings.TrimSpace(cfg.IdempotencyBackend))
	if backend == "" {
		// По умолчанию ключи хранятся рядом с заказами.
		backend = IdempotencyBackendMemory
		if pgStore != nil {
			backend = IdempotencyBackendPostgres
		}
	}

	switch backend {
	case IdempotencyBackendMemory:
		deps.idempotencyRepo = memory.NewIdempotencyRepository()
	case IdempotencyBackendPostgres:
		if pgStore == nil {
			return fmt.Errorf("postgres idempotency backend requires postgres storage driver")
		}
		deps.idempotencyRepo = postgres.NewIdempotencyRepository(pgStore)
	case IdempotencyBackendRedis:
		client, err := redis.Open(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		deps.addCloser(client.Close)
		deps.idempotencyRepo = redis.NewIdempotencyRepository(client)
		deps.checkers["redis"] = healthcheck.NewFuncChecker("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	default:
		return fmt.Errorf("unsupported idempotency backend %q", cfg.IdempotencyBackend)
	}

	logger.WithField("backend", backend).Info("idempotency storage initialized")
	return nil
}
