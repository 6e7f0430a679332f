package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"attestry/internal/platform/kafka/producer"
)

// Producer is the part of the Kafka producer the publisher needs.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// KafkaPublisher writes each topic to its own Kafka topic, prefixed.
// Records are keyed by aggregate so one profile's or claim's events stay in one partition.
type KafkaPublisher struct {
	producer Producer
	prefix   string
}

func NewKafkaPublisher(p Producer, topicPrefix string) *KafkaPublisher {
	return &KafkaPublisher{producer: p, prefix: topicPrefix}
}

// KafkaTopic returns the broker topic for t.
func (p *KafkaPublisher) KafkaTopic(t Topic) string {
	return p.prefix + string(t)
}

// KafkaTopics returns the broker topics for every registry topic.
func (p *KafkaPublisher) KafkaTopics() []string {
	topics := AllTopics()
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		out = append(out, p.KafkaTopic(t))
	}
	return out
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event.Topic, err)
	}
	return p.producer.Produce(ctx, &producer.Message{
		Topic: p.KafkaTopic(event.Topic),
		Key:   []byte(event.AggregateID),
		Value: value,
		Headers: map[string]string{
			"event_id":    event.ID.String(),
			"event_type":  string(event.Topic),
			"occurred_at": event.OccurredAt.UTC().Format(time.RFC3339),
		},
	})
}
