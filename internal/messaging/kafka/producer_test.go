package kafka

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func newMockProducer(t *testing.T) (*Producer, *mocks.SyncProducer) {
	t.Helper()

	mockProducer := mocks.NewSyncProducer(t, nil)
	return NewProducerFromSync(mockProducer, log.WithField("component", "kafka-producer-test")), mockProducer
}

func TestProducer_Send(t *testing.T) {
	producer, mockProducer := newMockProducer(t)

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicOrderEvents {
			t.Errorf("unexpected topic %q", msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "order-123" {
			t.Errorf("unexpected key %q", key)
		}
		if len(msg.Headers) != 1 || string(msg.Headers[0].Key) != HeaderEventType {
			t.Errorf("unexpected headers %+v", msg.Headers)
		}
		return nil
	})

	err := producer.Send(TopicOrderEvents, "order-123", []byte(`{}`), map[string]string{HeaderEventType: "order.created"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := producer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_Send_Error(t *testing.T) {
	producer, mockProducer := newMockProducer(t)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	if err := producer.Send(TopicOrderEvents, "order-123", []byte(`{}`), nil); err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_NilGuards(t *testing.T) {
	var producer *Producer
	if err := producer.Send("t", "k", nil, nil); err == nil {
		t.Fatal("expected error for nil producer")
	}
	if err := producer.Close(); err != nil {
		t.Fatalf("close nil producer: %v", err)
	}
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	if _, err := NewProducer(nil, ""); err == nil {
		t.Fatal("expected error without brokers")
	}
}

func TestNewProducerConfig(t *testing.T) {
	config := newProducerConfig("erp-test")

	if config.ClientID != "erp-test" {
		t.Fatalf("client id = %q", config.ClientID)
	}
	if !config.Producer.Idempotent || config.Net.MaxOpenRequests != 1 {
		t.Fatal("producer must be idempotent with a single in-flight request")
	}
	if config.Producer.RequiredAcks != sarama.WaitForAll {
		t.Fatalf("required acks = %v", config.Producer.RequiredAcks)
	}
	if err := config.Validate(); err != nil {
		t.Fatalf("config must be valid: %v", err)
	}
}
