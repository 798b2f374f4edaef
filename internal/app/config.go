package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
)

// Поддерживаемые драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Бэкенды хранилища ключей идемпотентности.
const (
	IdempotencyBackendMemory   = "memory"
	IdempotencyBackendPostgres = "postgres"
	IdempotencyBackendRedis    = "redis"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	GRPCAddr    string
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// KafkaBrokers: список адресов через запятую; пусто отключает публикацию.
	KafkaBrokers  string
	KafkaClientID string
	KafkaDLQTopic string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	IdempotencyBackend          string
	IdempotencyTTL              time.Duration
	RedisAddr                   string
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	StrictStatusTransitions bool

	HTTPRequestTimeout time.Duration
	// HTTPRateLimit: запросов в секунду на клиента; 0 отключает лимит.
	HTTPRateLimit float64
	HTTPRateBurst int
	// HTTPMaxBodyBytes: предельный размер тела REST-запроса.
	HTTPMaxBodyBytes int
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:    ":50051",
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		KafkaClientID: "erp-orders",
		KafkaDLQTopic: "erp.dlq",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   200 * time.Millisecond,

		IdempotencyBackend:          IdempotencyBackendMemory,
		IdempotencyTTL:              domain.DefaultIdempotencyTTL,
		RedisAddr:                   "localhost:6379",
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,

		HTTPRequestTimeout: 15 * time.Second,
		HTTPRateLimit:      50,
		HTTPRateBurst:      100,
		HTTPMaxBodyBytes:   1 << 20,
	}
}

// LoadConfigFromEnv накладывает переменные окружения ERP_* на DefaultConfig.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	var errs []string
	lookup := func(name string) (string, bool) {
		value, ok := os.LookupEnv(name)
		value = strings.TrimSpace(value)
		return value, ok && value != ""
	}

	setString := func(name string, dst *string) {
		if value, ok := lookup(name); ok {
			*dst = value
		}
	}
	setBool := func(name string, dst *bool) {
		if value, ok := lookup(name); ok {
			parsed, err := strconv.ParseBool(value)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
				return
			}
			*dst = parsed
		}
	}
	setInt := func(name string, dst *int) {
		if value, ok := lookup(name); ok {
			parsed, err := strconv.Atoi(value)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
				return
			}
			*dst = parsed
		}
	}
	setFloat := func(name string, dst *float64) {
		if value, ok := lookup(name); ok {
			parsed, err := strconv.ParseFloat(value, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
				return
			}
			*dst = parsed
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if value, ok := lookup(name); ok {
			parsed, err := time.ParseDuration(value)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
				return
			}
			*dst = parsed
		}
	}

	setString("ERP_GRPC_ADDR", &cfg.GRPCAddr)
	setString("ERP_HTTP_ADDR", &cfg.HTTPAddr)
	setString("ERP_METRICS_ADDR", &cfg.MetricsAddr)

	setString("ERP_STORAGE_DRIVER", &cfg.StorageDriver)
	setString("ERP_POSTGRES_DSN", &cfg.PostgresDSN)
	setBool("ERP_POSTGRES_AUTO_MIGRATE", &cfg.PostgresAutoMigrate)

	setString("ERP_KAFKA_BROKERS", &cfg.KafkaBrokers)
	setString("ERP_KAFKA_CLIENT_ID", &cfg.KafkaClientID)
	setString("ERP_KAFKA_DLQ_TOPIC", &cfg.KafkaDLQTopic)

	setDuration("ERP_OUTBOX_POLL_INTERVAL", &cfg.OutboxPollInterval)
	setInt("ERP_OUTBOX_BATCH_SIZE", &cfg.OutboxBatchSize)
	setInt("ERP_OUTBOX_MAX_ATTEMPTS", &cfg.OutboxMaxAttempts)
	setDuration("ERP_OUTBOX_RETRY_DELAY", &cfg.OutboxRetryDelay)

	setString("ERP_IDEMPOTENCY_BACKEND", &cfg.IdempotencyBackend)
	setDuration("ERP_IDEMPOTENCY_TTL", &cfg.IdempotencyTTL)
	setString("ERP_REDIS_ADDR", &cfg.RedisAddr)
	setDuration("ERP_IDEMPOTENCY_CLEANUP_INTERVAL", &cfg.IdempotencyCleanupInterval)
	setInt("ERP_IDEMPOTENCY_CLEANUP_BATCH_SIZE", &cfg.IdempotencyCleanupBatchSize)

	setBool("ERP_STRICT_STATUS_TRANSITIONS", &cfg.StrictStatusTransitions)

	setDuration("ERP_HTTP_REQUEST_TIMEOUT", &cfg.HTTPRequestTimeout)
	setFloat("ERP_HTTP_RATE_LIMIT", &cfg.HTTPRateLimit)
	setInt("ERP_HTTP_RATE_BURST", &cfg.HTTPRateBurst)
	setInt("ERP_HTTP_MAX_BODY_BYTES", &cfg.HTTPMaxBodyBytes)

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}

	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	cfg.IdempotencyBackend = strings.ToLower(cfg.IdempotencyBackend)
	return cfg, nil
}

// KafkaBrokerList разбирает список брокеров, отбрасывая пустые элементы.
func (c Config) KafkaBrokerList() []string {
	var brokers []string
	for _, broker := range strings.Split(c.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}
