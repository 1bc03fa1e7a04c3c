// Package kafka publishes stream events to a Kafka topic using
// segmentio/kafka-go. Events are keyed by stream ID so per-stream
// ordering is preserved within a partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	segmentio "github.com/segmentio/kafka-go"

	"github.com/brookhq/brook/pkg/eventstream"
)

// Publisher implements eventstream.Publisher on top of a kafka.Writer.
type Publisher struct {
	writer *segmentio.Writer
}

// NewPublisher creates a Publisher writing to topic on brokers.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &segmentio.Writer{
			Addr:     segmentio.TCP(brokers...),
			Topic:    topic,
			Balancer: &segmentio.Hash{},
		},
	}
}

// PublishStreamCompleted serializes the event as JSON and writes it
// keyed by stream ID.
func (p *Publisher) PublishStreamCompleted(ctx context.Context, event *eventstream.StreamCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	msg := segmentio.Message{
		Key:   []byte(event.Stream.StreamID),
		Value: payload,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
