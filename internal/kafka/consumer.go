package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/movra/payout-service/internal/service"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageReader is the subset of kafka.Reader the consumer needs
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TaskRunner executes a processing task with its retry policy
type TaskRunner interface {
	Run(ctx context.Context, payoutID string) (service.Result, error)
}

// Consumer consumes payout.process events and runs the processing task
type Consumer struct {
	reader MessageReader
	runner TaskRunner
	logger *zap.Logger
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(brokers []string, topic string, groupID string, runner TaskRunner, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	return NewConsumerWithReader(reader, runner, logger)
}

// NewConsumerWithReader creates a consumer over an existing reader
func NewConsumerWithReader(reader MessageReader, runner TaskRunner, logger *zap.Logger) *Consumer {
	return &Consumer{
		reader: reader,
		runner: runner,
		logger: logger,
	}
}

// Start consumes messages until ctx is cancelled. Each message is
// committed once its task has finished, whether it succeeded or was
// abandoned after its retries.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting Kafka consumer")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Error("Failed to read message", zap.Error(err))
			continue
		}

		if err := c.handleMessage(ctx, msg); err != nil {
			c.logger.Error("Failed to handle message",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to commit message",
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg kafka.Message) error {
	var event ProcessPayoutEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}
	if event.PayoutID == "" {
		return errors.New("event without payoutId")
	}

	c.logger.Info("Received payout.process event",
		zap.String("payoutId", event.PayoutID),
		zap.Time("enqueuedAt", event.EnqueuedAt),
	)

	msgCtx := extractTrace(ctx, msg.Headers)
	if _, err := c.runner.Run(msgCtx, event.PayoutID); err != nil {
		return fmt.Errorf("run task: %w", err)
	}
	return nil
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
