package domain

import (
	"context"
	"time"
)

// CatalogRepository описывает хранилище товаров.
type CatalogRepository interface {
	// Create сохраняет новый товар; занятый SKU даёт ErrSKUAlreadyExists.
	Create(ctx context.Context, product Product) error
	// FindByID возвращает товар или ErrProductNotFound.
	FindByID(ctx context.Context, id string) (Product, error)
	// FindByIDForUpdate читает товар и блокирует строку до конца транзакции.
	FindByIDForUpdate(ctx context.Context, id string) (Product, error)
	// FindBySKU возвращает товар по SKU или ErrProductNotFound.
	FindBySKU(ctx context.Context, sku string) (Product, error)
	// Update перезаписывает атрибуты товара, кроме остатка.
	Update(ctx context.Context, product Product) error
	// AdjustStock атомарно меняет остаток на delta. Если остаток ушёл бы
	// в минус, возвращает *InsufficientStockError и ничего не меняет.
	AdjustStock(ctx context.Context, id string, delta int) (Product, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// NextOrderNumber выделяет уникальный номер заказа.
	NextOrderNumber(ctx context.Context, at time.Time) (string, error)
	// Create сохраняет заказ вместе с позициями.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ с позициями или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// GetForUpdate как Get, но блокирует заказ до конца транзакции.
	GetForUpdate(ctx context.Context, id string) (Order, error)
	// ListByUser возвращает страницу заказов пользователя (новые первыми) и общее число.
	ListByUser(ctx context.Context, userID string, page PageRequest) ([]Order, int, error)
	// UpdateStatus меняет статус заказа.
	UpdateStatus(ctx context.Context, id string, status OrderStatus, updatedAt time.Time) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// Repositories: набор репозиториев, работающих в одной области видимости:
// либо напрямую над хранилищем, либо внутри транзакции.
type Repositories interface {
	Catalog() CatalogRepository
	Orders() OrderRepository
	Outbox() OutboxRepository
	Timeline() TimelineRepository
}

// UnitOfWork выполняет группу операций атомарно.
type UnitOfWork interface {
	Repositories
	// WithinTx вызывает fn с репозиториями, привязанными к транзакции.
	// Ошибка fn откатывает все изменения, nil фиксирует их.
	WithinTx(ctx context.Context, fn func(tx Repositories) error) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// UserDirectory отдаёт краткие сведения о пользователях.
type UserDirectory interface {
	// Lookup возвращает пользователя или ErrUserNotFound.
	Lookup(ctx context.Context, userID string) (UserSummary, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, statusCode int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, statusCode int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}
