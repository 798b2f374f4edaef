package kafka

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
)

// Topics для Kafka.
const (
	TopicOrderEvents     = "erp.order.events"
	TopicInventoryEvents = "erp.inventory.events"
	TopicDeadLetterQueue = "erp.dlq"
)

// Заголовки сообщений.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
	HeaderOriginalTopic = "x-original-topic"
)

// Envelope: обёртка, в которой события outbox уходят в брокер.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope строит Envelope из outbox-сообщения.
func NewEnvelope(msg domain.OutboxMessage, publishedAt time.Time) Envelope {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 || !json.Valid(payload) {
		payload = json.RawMessage("null")
	}
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		OccurredAt:    msg.CreatedAt,
		PublishedAt:   publishedAt,
	}
}

// TopicRouter выбирает topic по типу агрегата.
type TopicRouter struct {
	Orders    string
	Inventory string
}

// DefaultTopicRouter использует стандартные topics сервиса.
func DefaultTopicRouter() TopicRouter {
	return TopicRouter{Orders: TopicOrderEvents, Inventory: TopicInventoryEvents}
}

// Route возвращает topic для сообщения; неизвестные агрегаты идут в topic заказов.
func (r TopicRouter) Route(msg domain.OutboxMessage) string {
	orders := r.Orders
	if orders == "" {
		orders = TopicOrderEvents
	}
	if msg.AggregateType == domain.AggregateProduct {
		if r.Inventory != "" {
			return r.Inventory
		}
		return TopicInventoryEvents
	}
	return orders
}
