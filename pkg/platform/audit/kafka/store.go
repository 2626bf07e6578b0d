// Package kafka provides an audit Store that produces events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"veridoc/internal/platform/kafka/producer"
	audit "veridoc/pkg/platform/audit"
)

// Store publishes audit events to a Kafka topic, keyed by request ID so all
// events for one orchestration land on the same partition in order.
type Store struct {
	producer *producer.Producer
	topic    string
}

// NewStore creates a Kafka-backed audit store.
func NewStore(p *producer.Producer, topic string) *Store {
	return &Store{producer: p, topic: topic}
}

// Append serializes the event and produces it synchronously.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	return s.producer.Produce(ctx, &producer.Message{
		Topic: s.topic,
		Key:   []byte(event.RequestID),
		Value: value,
		Headers: map[string]string{
			"action":  string(event.Action),
			"outcome": string(event.Outcome),
		},
	})
}
