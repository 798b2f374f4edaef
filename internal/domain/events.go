package domain

import "time"

// Типы событий transactional outbox.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderCancelled     = "order.cancelled"
	EventInventoryAdjusted  = "inventory.adjusted"
)

// Типы агрегатов outbox.
const (
	AggregateOrder   = "order"
	AggregateProduct = "product"
)

// OrderEventPayload: тело событий жизненного цикла заказа.
type OrderEventPayload struct {
	OrderID        string      `json:"order_id"`
	OrderNumber    string      `json:"order_number"`
	UserID         string      `json:"user_id"`
	Status         OrderStatus `json:"status"`
	PreviousStatus OrderStatus `json:"previous_status,omitempty"`
	TotalAmount    string      `json:"total_amount"`
	Reason         string      `json:"reason,omitempty"`
	OccurredAt     time.Time   `json:"occurred_at"`
}

// InventoryAdjustedPayload: тело события изменения остатка.
type InventoryAdjustedPayload struct {
	ProductID  string    `json:"product_id"`
	Delta      int       `json:"delta"`
	Stock      int       `json:"stock"`
	OrderID    string    `json:"order_id,omitempty"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
