package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/erp-orders/internal/app"
	"github.com/vladislavdragonenkov/erp-orders/internal/version"
)

const (
	envLogLevel  = "ERP_LOG_LEVEL"
	envLogFormat = "ERP_LOG_FORMAT"
	envDotEnv    = "ERP_ENV_FILE"
)

type envLookup func(key string) (string, bool)

// loadDotEnv подгружает .env, не перезаписывая уже заданные переменные.
// Отсутствие файла по умолчанию не считается ошибкой.
func loadDotEnv(lookup envLookup) error {
	path, explicit := lookup(envDotEnv)
	path = strings.TrimSpace(path)
	if path == "" {
		path, explicit = ".env", false
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(logger *log.Logger, lookup envLookup) error {
	if format, _ := lookup(envLogFormat); strings.EqualFold(strings.TrimSpace(format), "json") {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	logger.SetLevel(log.InfoLevel)
	raw, ok := lookup(envLogLevel)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	level, err := log.ParseLevel(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	return nil
}

func main() {
	if err := loadDotEnv(os.LookupEnv); err != nil {
		log.WithError(err).Fatal("не удалось прочитать .env")
	}
	if err := setupLogger(log.StandardLogger(), os.LookupEnv); err != nil {
		log.WithError(err).Warn("неизвестный уровень логирования, используем info")
	}

	cfg, err := app.LoadConfigFromEnv()
	if err != nil {
		log.WithError(err).Fatal("некорректная конфигурация")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"grpc_addr":      cfg.GRPCAddr,
		"http_addr":      cfg.HTTPAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"idempotency":    cfg.IdempotencyBackend,
		"version":        version.String(),
	}).Info("запускаем erp-orders")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("erp-orders остановлен")
}
