package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/movra/payout-service/internal/config"
	"github.com/movra/payout-service/internal/metrics"
	"github.com/movra/payout-service/internal/service"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrRetriesExhausted is returned when every attempt of a task failed
var ErrRetriesExhausted = errors.New("retries exhausted")

// Processor runs one processing attempt for a payout
type Processor interface {
	Process(ctx context.Context, payoutID string) (service.Result, error)
}

// RetryPolicy bounds re-runs after infrastructure errors
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// PolicyFromConfig extracts the retry policy from processing settings
func PolicyFromConfig(cfg config.Processing) RetryPolicy {
	return RetryPolicy{MaxRetries: cfg.MaxRetries, Delay: cfg.RetryDelay}
}

// Executor wraps a Processor with the task retry policy. Each attempt
// re-runs the whole protocol from the lookup.
type Executor struct {
	processor Processor
	policy    RetryPolicy
	logger    *zap.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// NewExecutor creates an executor
func NewExecutor(p Processor, policy RetryPolicy, logger *zap.Logger, m *metrics.Metrics) *Executor {
	return &Executor{
		processor: p,
		policy:    policy,
		logger:    logger,
		metrics:   m,
		tracer:    otel.Tracer("payout-worker"),
	}
}

// Run executes the task for payoutID. Business results come back with a
// nil error on the first attempt that reaches one. When all attempts fail
// the job is abandoned and an error wrapping ErrRetriesExhausted is
// returned.
func (e *Executor) Run(ctx context.Context, payoutID string) (service.Result, error) {
	ctx, span := e.tracer.Start(ctx, "ProcessPayout", trace.WithAttributes(
		attribute.String("payout.id", payoutID),
	))
	defer span.End()

	if e.metrics != nil {
		e.metrics.TaskStarted()
		defer e.metrics.TaskFinished()
	}

	log := e.logger.With(zap.String("payoutId", payoutID))

	var (
		result  service.Result
		attempt int
	)
	operation := func() error {
		attempt++
		r, err := e.processor.Process(ctx, payoutID)
		if err != nil {
			return err
		}
		result = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("Payout processing failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("maxRetries", e.policy.MaxRetries),
			zap.Duration("retryIn", wait),
			zap.Error(err),
		)
		if e.metrics != nil {
			e.metrics.RecordTaskRetry()
		}
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(e.policy.Delay), uint64(e.policy.MaxRetries)),
		ctx,
	)
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		log.Error("Payout processing abandoned",
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
		if e.metrics != nil {
			e.metrics.RecordTaskAbandoned()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "abandoned")
		return "", fmt.Errorf("process payout %s after %d attempts: %w: %w", payoutID, attempt, ErrRetriesExhausted, err)
	}

	span.SetAttributes(attribute.String("payout.result", string(result)))
	log.Info("Payout task finished", zap.String("result", string(result)), zap.Int("attempts", attempt))
	return result, nil
}
