package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
)

// OutboxPublisher публикует события заказов и остатков в их topics.
type OutboxPublisher struct {
	producer *Producer
	router   TopicRouter
	now      func() time.Time
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, router TopicRouter) *OutboxPublisher {
	return &OutboxPublisher{
		producer: producer,
		router:   router,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *OutboxPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	body, err := json.Marshal(NewEnvelope(event, p.now()))
	if err != nil {
		return fmt.Errorf("marshal outbox envelope: %w", err)
	}

	return p.producer.Send(p.router.Route(event), partitionKey(event), body, map[string]string{
		HeaderEventType:     event.EventType,
		HeaderAggregateType: event.AggregateType,
		HeaderOutboxID:      event.ID,
	})
}

// DLQPublisher отправляет в topic DLQ сообщения, которые не удалось опубликовать.
// Payload уже содержит обёртку воркера, поэтому уходит как есть.
type DLQPublisher struct {
	producer *Producer
	topic    string
	router   TopicRouter
}

func NewDLQPublisher(producer *Producer, topic string, router TopicRouter) *DLQPublisher {
	if topic == "" {
		topic = TopicDeadLetterQueue
	}
	return &DLQPublisher{producer: producer, topic: topic, router: router}
}

func (p *DLQPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka dlq publisher is not initialized")
	}

	return p.producer.Send(p.topic, partitionKey(event), event.Payload, map[string]string{
		HeaderEventType:     event.EventType,
		HeaderOutboxID:      event.ID,
		HeaderOriginalTopic: p.router.Route(event),
	})
}

// partitionKey держит события одного агрегата в одной партиции.
func partitionKey(event domain.OutboxMessage) string {
	if event.AggregateID != "" {
		return event.AggregateID
	}
	return event.ID
}

var (
	_ domain.OutboxPublisher = (*OutboxPublisher)(nil)
	_ domain.OutboxPublisher = (*DLQPublisher)(nil)
)
