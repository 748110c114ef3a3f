package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/Hangulling/dorandoran-chat/internal/log"
)

// Kafka topic names backing the two bus namespaces. The room id travels as
// the message key, which also gives per-room ordering within a partition.
const (
	kafkaTopicRoom = "chat-room"
	kafkaTopicPush = "chat-push"
)

// busTopicToKafka converts "room:{roomID}" / "push:{roomID}" into a Kafka
// topic and message key.
func busTopicToKafka(topic string) (kafkaTopic, key string, err error) {
	t, err := ParseTopic(topic)
	if err != nil {
		return "", "", err
	}
	switch t.Kind {
	case KindPush:
		return kafkaTopicPush, t.RoomID, nil
	default:
		return kafkaTopicRoom, t.RoomID, nil
	}
}

// patternToKafkaTopic converts a bus subscribe pattern to a Kafka topic.
//
//	"room:*" → "chat-room"
//	"push:*" → "chat-push"
func patternToKafkaTopic(pattern string) (string, error) {
	switch pattern {
	case PatternRoom:
		return kafkaTopicRoom, nil
	case PatternPush:
		return kafkaTopicPush, nil
	default:
		return "", fmt.Errorf("unsupported subscribe pattern: %s", pattern)
	}
}

// busTopicFromKafka reconstructs the logical bus topic from a consumed record.
func busTopicFromKafka(kafkaTopic, key string) string {
	if kafkaTopic == kafkaTopicPush {
		return PushTopic(key).String()
	}
	return RoomTopic(key).String()
}

type kafkaSubscription struct {
	consumer *kafka.Consumer
	cancel   context.CancelFunc
}

// KafkaBus implements Bus over Apache Kafka.
type KafkaBus struct {
	producer      *kafka.Producer
	subscriptions map[string]*kafkaSubscription
	config        KafkaConfig
	mu            sync.Mutex
	doneCh        chan struct{}
}

// NewKafkaBus creates the producer and ensures the backing topics exist.
func NewKafkaBus(cfg KafkaConfig) (*KafkaBus, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	b := &KafkaBus{
		producer:      p,
		subscriptions: make(map[string]*kafkaSubscription),
		config:        cfg,
		doneCh:        make(chan struct{}),
	}

	go b.deliveryReportHandler()

	if err := b.ensureTopics(); err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("failed to ensure kafka topics (may already exist)")
	}

	return b, nil
}

func (b *KafkaBus) ensureTopics() error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": b.config.Brokers,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	partitions := b.config.Partitions
	if partitions <= 0 {
		partitions = 4
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{
		{Topic: kafkaTopicRoom, NumPartitions: partitions, ReplicationFactor: 1},
		{Topic: kafkaTopicPush, NumPartitions: partitions, ReplicationFactor: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create topics: %w", err)
	}

	l := log.L()
	for _, r := range results {
		if r.Error.Code() != kafka.ErrNoError && r.Error.Code() != kafka.ErrTopicAlreadyExists {
			l.Warn().Str("kafka_topic", r.Topic).Str("reason", r.Error.String()).Msg("failed to create kafka topic")
		}
	}

	return nil
}

func (b *KafkaBus) deliveryReportHandler() {
	l := log.L()
	for e := range b.producer.Events() {
		if ev, ok := e.(*kafka.Message); ok && ev.TopicPartition.Error != nil {
			l.Error().Err(ev.TopicPartition.Error).Msg("kafka delivery failed")
		}
	}
	close(b.doneCh)
}

func (b *KafkaBus) Publish(ctx context.Context, topic string, data []byte) error {
	kafkaTopic, key, err := busTopicToKafka(topic)
	if err != nil {
		return err
	}

	err = b.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &kafkaTopic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(key),
		Value: data,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	return nil
}

func (b *KafkaBus) SubscribePattern(ctx context.Context, pattern string) (<-chan *Message, error) {
	kafkaTopic, err := patternToKafkaTopic(pattern)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.subscriptions[pattern]; ok {
		existing.cancel()
		existing.consumer.Close()
		delete(b.subscriptions, pattern)
	}

	groupID := b.config.GroupID
	if groupID == "" {
		groupID = "chat-delivery"
	}

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":       b.config.Brokers,
		"group.id":                groupID,
		"auto.offset.reset":       "latest",
		"enable.auto.commit":      true,
		"auto.commit.interval.ms": 5000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	if err := c.Subscribe(kafkaTopic, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", kafkaTopic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	msgCh := make(chan *Message, 100)

	b.subscriptions[pattern] = &kafkaSubscription{consumer: c, cancel: cancel}

	go b.consume(subCtx, c, msgCh)

	return msgCh, nil
}

func (b *KafkaBus) consume(ctx context.Context, c *kafka.Consumer, out chan<- *Message) {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ev := c.Poll(500)
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			msg := &Message{
				Topic: busTopicFromKafka(*e.TopicPartition.Topic, string(e.Key)),
				Data:  e.Value,
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}

		case kafka.Error:
			l := log.L()
			l.Error().Err(e).Bool("fatal", e.IsFatal()).Msg("kafka consumer error")
			if e.IsFatal() {
				return
			}

		default:
			// Ignore rebalance and stats events.
		}
	}
}

func (b *KafkaBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, sub := range b.subscriptions {
		sub.cancel()
		sub.consumer.Close()
		delete(b.subscriptions, key)
	}

	b.producer.Flush(5000)
	b.producer.Close()
	<-b.doneCh

	return nil
}
