// Command dlq-reprocess возвращает события из DLQ в рабочие topics.
// По умолчанию работает в dry-run и только перечисляет кандидатов.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/erp-orders/internal/domain"
	"github.com/vladislavdragonenkov/erp-orders/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
	envBrokers         = "ERP_KAFKA_BROKERS"
	envDLQTopic        = "ERP_KAFKA_DLQ_TOPIC"
)

var errUsage = errors.New("usage")

type config struct {
	brokers     []string
	clientID    string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

// deadLetter: тело сообщения, которое outbox-воркер кладёт в DLQ.
type deadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}

type replayMessage struct {
	topic string
	event domain.OutboxMessage
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type replaySender interface {
	Send(topic, key string, value []byte, headers map[string]string) error
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := a.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

type replayDeps struct {
	client   offsetClient
	consumer partitionConsumerSource
	sender   replaySender
}

func (d replayDeps) close() {
	if d.sender != nil {
		_ = d.sender.Close()
	}
	if d.consumer != nil {
		_ = d.consumer.Close()
	}
	if d.client != nil {
		_ = d.client.Close()
	}
}

type depsFunc func(cfg config) (replayDeps, error)

func openKafka(cfg config) (replayDeps, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.ClientID = cfg.clientID
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return replayDeps{}, fmt.Errorf("create kafka client: %w", err)
	}

	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return replayDeps{}, fmt.Errorf("create kafka consumer: %w", err)
	}
	deps := replayDeps{client: client, consumer: saramaConsumerAdapter{consumer: rawConsumer}}
	if !cfg.execute {
		return deps, nil
	}

	producer, err := kafka.NewProducer(cfg.brokers, cfg.clientID)
	if err != nil {
		deps.close()
		return replayDeps{}, err
	}
	deps.sender = producer
	return deps, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}
	if err := run(ctx, cfg, openKafka, log.WithField("component", "dlq-reprocess")); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func parseConfig(args []string, getenv func(string) string) (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: "+envBrokers+")")
	fs.StringVar(&cfg.clientID, "client-id", "erp-dlq-reprocess", "Kafka client id")
	fs.StringVar(&cfg.sourceTopic, "source-topic", "", "DLQ source topic (fallback: "+envDLQTopic+", default "+kafka.TopicDeadLetterQueue+")")
	fs.StringVar(&cfg.targetTopic, "target-topic", "", "force replay into this topic instead of the original one")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to scan/replay")
	fs.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	if err := fs.Parse(args); err != nil {
		return config{}, fmt.Errorf("%w: %v", errUsage, err)
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = getenv(envBrokers)
	}
	cfg.brokers = parseBrokers(brokersRaw)
	if len(cfg.brokers) == 0 {
		return config{}, fmt.Errorf("%w: kafka brokers are required (-brokers or %s)", errUsage, envBrokers)
	}

	cfg.sourceTopic = strings.TrimSpace(cfg.sourceTopic)
	if cfg.sourceTopic == "" {
		cfg.sourceTopic = strings.TrimSpace(getenv(envDLQTopic))
	}
	if cfg.sourceTopic == "" {
		cfg.sourceTopic = kafka.TopicDeadLetterQueue
	}
	cfg.targetTopic = strings.TrimSpace(cfg.targetTopic)
	if cfg.targetTopic == cfg.sourceTopic {
		return config{}, fmt.Errorf("%w: target-topic must differ from source-topic", errUsage)
	}
	if cfg.limit <= 0 {
		return config{}, fmt.Errorf("%w: limit must be > 0", errUsage)
	}
	if cfg.idleTimeout <= 0 {
		return config{}, fmt.Errorf("%w: idle-timeout must be > 0", errUsage)
	}
	return cfg, nil
}

func parseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config, open depsFunc, logger *log.Entry) error {
	logger.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
		"from_newest":  cfg.fromNewest,
	}).Info("starting dlq replay")

	deps, err := open(cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	stats, err := runReplay(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	logger.WithFields(log.Fields{
		"mode":      mode,
		"processed": stats.processed,
		"replayed":  stats.replayed,
		"skipped":   stats.skipped,
	}).Info("dlq replay finished")
	return nil
}

type replayStats struct {
	processed int
	replayed  int
	skipped   int
}

func (s *replayStats) add(other replayStats) {
	s.processed += other.processed
	s.replayed += other.replayed
	s.skipped += other.skipped
}

func runReplay(ctx context.Context, cfg config, deps replayDeps, logger *log.Entry) (replayStats, error) {
	var total replayStats
	if deps.client == nil || deps.consumer == nil {
		return total, errors.New("kafka client and consumer are required")
	}
	if cfg.execute && deps.sender == nil {
		return total, errors.New("producer is required in execute mode")
	}

	partitions, err := deps.client.Partitions(cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		logger.WithField("topic", cfg.sourceTopic).Warn("source topic has no partitions")
		return total, nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if total.processed >= cfg.limit {
			break
		}
		stats, err := processPartition(ctx, deps, cfg, partition, cfg.limit-total.processed, logger)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func processPartition(ctx context.Context, deps replayDeps, cfg config, partition int32, limit int, logger *log.Entry) (replayStats, error) {
	var stats replayStats
	if limit <= 0 {
		return stats, nil
	}

	oldest, err := deps.client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := deps.client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if cfg.fromNewest {
		start = max(newest-int64(limit), oldest)
	}

	pc, err := deps.consumer.ConsumePartition(cfg.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(cfg.idleTimeout)
	defer idle.Stop()

	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case cerr := <-pc.Errors():
			if cerr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, cerr)
			}
		case <-idle.C:
			return stats, nil
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			idle.Reset(cfg.idleTimeout)

			stats.processed++
			fields := log.Fields{"partition": msg.Partition, "offset": msg.Offset}

			replay, err := decodeDeadLetter(msg, cfg.targetTopic)
			if err != nil {
				stats.skipped++
				logger.WithError(err).WithFields(fields).Warn("skip unsupported dlq message")
			} else if cfg.execute {
				if err := publishReplay(deps.sender, replay); err != nil {
					return stats, fmt.Errorf("publish replay message: %w", err)
				}
				stats.replayed++
			} else {
				fields["target_topic"] = replay.topic
				fields["event_type"] = replay.event.EventType
				fields["outbox_id"] = replay.event.ID
				logger.WithFields(fields).Info("dlq replay candidate")
				stats.replayed++
			}

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

// decodeDeadLetter восстанавливает исходное outbox-событие и его topic.
// Topic берётся из target, затем из заголовка x-original-topic, затем по типу агрегата.
func decodeDeadLetter(msg *sarama.ConsumerMessage, target string) (replayMessage, error) {
	var letter deadLetter
	if err := json.Unmarshal(msg.Value, &letter); err != nil {
		return replayMessage{}, fmt.Errorf("decode dlq payload: %w", err)
	}
	if letter.OutboxID == "" || letter.EventType == "" {
		return replayMessage{}, errors.New("dlq payload has no outbox id or event type")
	}
	if len(letter.Payload) == 0 {
		return replayMessage{}, errors.New("dlq payload does not contain original event payload")
	}

	event := domain.OutboxMessage{
		ID:            letter.OutboxID,
		AggregateType: letter.AggregateType,
		AggregateID:   letter.AggregateID,
		EventType:     letter.EventType,
		Payload:       []byte(letter.Payload),
		CreatedAt:     msg.Timestamp.UTC(),
	}

	topic := target
	if topic == "" {
		topic = headerValue(msg, kafka.HeaderOriginalTopic)
	}
	if topic == "" {
		topic = kafka.DefaultTopicRouter().Route(event)
	}
	return replayMessage{topic: topic, event: event}, nil
}

func headerValue(msg *sarama.ConsumerMessage, name string) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == name {
			return strings.TrimSpace(string(h.Value))
		}
	}
	return ""
}

func publishReplay(sender replaySender, replay replayMessage) error {
	if sender == nil {
		return errors.New("producer is nil")
	}

	body, err := json.Marshal(kafka.NewEnvelope(replay.event, time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("encode replay envelope: %w", err)
	}
	key := replay.event.AggregateID
	if key == "" {
		key = replay.event.ID
	}
	return sender.Send(replay.topic, key, body, map[string]string{
		kafka.HeaderEventType:     replay.event.EventType,
		kafka.HeaderAggregateType: replay.event.AggregateType,
		kafka.HeaderOutboxID:      replay.event.ID,
	})
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
