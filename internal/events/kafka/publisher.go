// Package kafka publishes ledger events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"demobank/internal/events"

	"github.com/segmentio/kafka-go"
)

// Compile-time check: *Publisher must satisfy events.Publisher.
var _ events.Publisher = (*Publisher)(nil)

type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (p *Publisher) Publish(topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(topic),
		Value: data,
	})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
