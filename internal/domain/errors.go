package domain

import (
	"errors"
	"fmt"
)

// Базовые категории ошибок. Конкретные ошибки оборачивают одну из них,
// чтобы транспортный слой мог выбрать код ответа через errors.Is.
var (
	// ErrValidation: входные данные не прошли проверку.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound: запрошенная сущность отсутствует.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock: на складе недостаточно товара.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidState: операция недопустима в текущем статусе заказа.
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict: нарушение уникальности.
	ErrConflict = errors.New("conflict")
)

var (
	ErrUserRequired       = fmt.Errorf("%w: user_id is required", ErrValidation)
	ErrItemsRequired      = fmt.Errorf("%w: order must contain at least one item", ErrValidation)
	ErrProductIDRequired  = fmt.Errorf("%w: product_id is required", ErrValidation)
	ErrItemQtyInvalid     = fmt.Errorf("%w: item quantity must be greater than zero", ErrValidation)
	ErrOrderIDRequired    = fmt.Errorf("%w: order_id is required", ErrValidation)
	ErrStatusInvalid      = fmt.Errorf("%w: unknown order status", ErrValidation)
	ErrProductNameMissing = fmt.Errorf("%w: product name is required", ErrValidation)
	ErrSKURequired        = fmt.Errorf("%w: sku is required", ErrValidation)
	ErrPriceNegative      = fmt.Errorf("%w: price must be non-negative", ErrValidation)
	ErrStockNegative      = fmt.Errorf("%w: stock must be non-negative", ErrValidation)
	ErrTotalsMismatch     = fmt.Errorf("%w: order totals do not match items", ErrValidation)

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = fmt.Errorf("order %w", ErrNotFound)
	// ErrProductNotFound возвращается, если товара нет в каталоге.
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)
	// ErrUserNotFound возвращается справочником пользователей.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)

	// ErrOrderNumberConflict: номер заказа уже занят.
	ErrOrderNumberConflict = fmt.Errorf("order number %w", ErrConflict)
	// ErrSKUAlreadyExists: товар с таким SKU уже есть в каталоге.
	ErrSKUAlreadyExists = fmt.Errorf("sku already exists: %w", ErrConflict)

	// ErrStatusTransition: переход статуса запрещён политикой.
	ErrStatusTransition = fmt.Errorf("%w: status transition not allowed", ErrInvalidState)
	// ErrOrderNotCancellable: заказ уже отгружен, доставлен или отменён.
	ErrOrderNotCancellable = fmt.Errorf("%w: order cannot be cancelled", ErrInvalidState)

	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// Ошибки хранилища ключей идемпотентности.
var (
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different payload")
)

// InsufficientStockError сообщает, какого товара не хватило.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", name, e.Requested, e.Available)
}

// Is позволяет сопоставлять ошибку с ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// IsValidation проверяет, что ошибка относится к невалидному вводу.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound проверяет, что сущность не найдена.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInsufficientStock проверяет нехватку остатков.
func IsInsufficientStock(err error) bool {
	return errors.Is(err, ErrInsufficientStock)
}

// IsInvalidState проверяет недопустимый статус для операции.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsConflict проверяет нарушение уникальности.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsIdempotencyConflict проверяет конфликт ключа идемпотентности.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
