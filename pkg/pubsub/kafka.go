package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// roomEventsTopic is the single Kafka topic backing the per-room channels.
// Redis fans out per channel; Kafka multiplexes rooms on one topic keyed by
// room ID so ordering per room is preserved by partitioning.
const roomEventsTopic = "relay-room-events"

// channelToTopicAndKey converts a Redis-style channel to a Kafka topic and key.
//
//	"relay:room:ROOM123:events" → topic: "relay-room-events", key: "ROOM123"
func channelToTopicAndKey(channel string) (topic, key string, err error) {
	parts := strings.Split(channel, ":")
	if len(parts) != 4 || parts[0] != "relay" || parts[1] != "room" {
		return "", "", fmt.Errorf("invalid channel format: %s", channel)
	}
	return roomEventsTopic, parts[2], nil
}

// kafkaSubscription tracks a single consumer subscription.
type kafkaSubscription struct {
	consumer *kafka.Consumer
	cancel   context.CancelFunc
}

// KafkaPubSub implements PubSub interface using Apache Kafka.
type KafkaPubSub struct {
	producer      *kafka.Producer
	subscriptions map[string]*kafkaSubscription // key (channel or pattern) → subscription
	config        KafkaConfig
	mu            sync.Mutex
	doneCh        chan struct{}
}

// NewKafkaPubSub creates a new Kafka-based PubSub instance.
func NewKafkaPubSub(cfg KafkaConfig) (*KafkaPubSub, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	kps := &KafkaPubSub{
		producer:      p,
		subscriptions: make(map[string]*kafkaSubscription),
		config:        cfg,
		doneCh:        make(chan struct{}),
	}

	go kps.deliveryReportHandler()

	if err := kps.ensureTopics(); err != nil {
		log.Printf("Warning: failed to ensure Kafka topics: %v (may already exist)", err)
	}

	return kps, nil
}

// ensureTopics creates the fixed topic if it doesn't exist.
func (k *KafkaPubSub) ensureTopics() error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": k.config.Brokers,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	partitions := k.config.Partitions
	if partitions <= 0 {
		partitions = 4
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = admin.CreateTopics(ctx, []kafka.TopicSpecification{
		{
			Topic:             roomEventsTopic,
			NumPartitions:     partitions,
			ReplicationFactor: 1,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create topics: %w", err)
	}
	return nil
}

// deliveryReportHandler drains producer events and logs failed deliveries.
func (k *KafkaPubSub) deliveryReportHandler() {
	for {
		select {
		case <-k.doneCh:
			return
		case e, ok := <-k.producer.Events():
			if !ok {
				return
			}
			if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
				log.Printf("kafka delivery failed: %v", m.TopicPartition.Error)
			}
		}
	}
}

// Publish publishes an event to the channel's backing topic.
func (k *KafkaPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	topic, key, err := channelToTopicAndKey(channel)
	if err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          data,
	}, nil)
}

// Subscribe subscribes to a single room's channel. Messages for other rooms
// on the shared topic are filtered out by key.
func (k *KafkaPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	topic, roomID, err := channelToTopicAndKey(channel)
	if err != nil {
		return nil, err
	}
	return k.subscribe(ctx, channel, topic, roomID)
}

// SubscribePattern subscribes to all rooms' events on the shared topic.
func (k *KafkaPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	if pattern != RoomEventsPattern {
		return nil, fmt.Errorf("unsupported pattern: %s", pattern)
	}
	return k.subscribe(ctx, pattern, roomEventsTopic, "")
}

func (k *KafkaPubSub) subscribe(ctx context.Context, name, topic, keyFilter string) (<-chan *Event, error) {
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": k.config.Brokers,
		"group.id":          k.config.GroupID + "-" + name,
		"auto.offset.reset": "latest",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	if err := consumer.Subscribe(topic, nil); err != nil {
		consumer.Close()
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)

	k.mu.Lock()
	k.subscriptions[name] = &kafkaSubscription{consumer: consumer, cancel: cancel}
	k.mu.Unlock()

	eventCh := make(chan *Event, 100)
	go k.consumeLoop(subCtx, consumer, keyFilter, eventCh)

	return eventCh, nil
}

func (k *KafkaPubSub) consumeLoop(ctx context.Context, consumer *kafka.Consumer, keyFilter string, eventCh chan<- *Event) {
	defer close(eventCh)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := consumer.ReadMessage(500 * time.Millisecond)
		if err != nil {
			if kerr, ok := err.(kafka.Error); ok && kerr.IsTimeout() {
				continue
			}
			log.Printf("kafka read error: %v", err)
			continue
		}

		if keyFilter != "" && string(msg.Key) != keyFilter {
			continue
		}

		var event Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			continue
		}

		select {
		case eventCh <- &event:
		default:
			// Consumer is slow; drop the event rather than block.
		}
	}
}

// Unsubscribe closes the subscription for a channel.
func (k *KafkaPubSub) Unsubscribe(ctx context.Context, channel string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if sub, ok := k.subscriptions[channel]; ok {
		sub.cancel()
		if err := sub.consumer.Close(); err != nil {
			return err
		}
		delete(k.subscriptions, channel)
	}
	return nil
}

// Close shuts down the producer and all consumers.
func (k *KafkaPubSub) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	close(k.doneCh)

	for _, sub := range k.subscriptions {
		sub.cancel()
		sub.consumer.Close()
	}
	k.subscriptions = make(map[string]*kafkaSubscription)

	k.producer.Flush(3000)
	k.producer.Close()
	return nil
}
