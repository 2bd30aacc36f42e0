package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ProcessPayoutEvent asks a worker to process one payout
type ProcessPayoutEvent struct {
	PayoutID   string    `json:"payoutId"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// MessageWriter is the subset of kafka.Writer the producer needs
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer enqueues payout processing jobs on a Kafka topic
type Producer struct {
	writer MessageWriter
	now    func() time.Time
}

// NewProducer creates a producer writing to topic
func NewProducer(brokers []string, topic string) *Producer {
	return NewProducerWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	})
}

// NewProducerWithWriter creates a producer over an existing writer
func NewProducerWithWriter(w MessageWriter) *Producer {
	return &Producer{writer: w, now: time.Now}
}

// Enqueue publishes one job keyed by payout id, so retries of the same
// payout land on the same partition.
func (p *Producer) Enqueue(ctx context.Context, payoutID string) error {
	value, err := json.Marshal(ProcessPayoutEvent{
		PayoutID:   payoutID,
		EnqueuedAt: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:     []byte(payoutID),
		Value:   value,
		Headers: injectTrace(ctx, []kafka.Header{{Key: "event_type", Value: []byte("payout.process")}}),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("enqueue payout %s: %w", payoutID, err)
	}
	return nil
}

// Close flushes and closes the writer
func (p *Producer) Close() error {
	return p.writer.Close()
}
