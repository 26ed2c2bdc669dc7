// Package kafka publishes audit events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ledgerkeep/ledgerkeep/internal/events"
	"github.com/segmentio/kafka-go"
)

// Publisher writes batch-reconciled events to one topic, keyed by
// user ID.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// PublishBatchReconciled implements events.Publisher.
func (p *Publisher) PublishBatchReconciled(ctx context.Context, event events.BatchReconciled) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("PublishBatchReconciled: marshaling event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.UserID),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("PublishBatchReconciled: writing message: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ events.Publisher = (*Publisher)(nil)
