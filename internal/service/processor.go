package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/movra/payout-service/internal/config"
	"github.com/movra/payout-service/internal/metrics"
	"github.com/movra/payout-service/internal/model"
	"github.com/movra/payout-service/internal/provider"
	"github.com/movra/payout-service/internal/repository"
	"go.uber.org/zap"
)

// Result is the business outcome of one processing run
type Result string

const (
	ResultSuccess  Result = "SUCCESS"
	ResultNotFound Result = "ERROR_NOT_FOUND"
	ResultTimeout  Result = "ERROR_TIMEOUT"
)

// resultInfraError labels metrics for attempts that ended in an error.
const resultInfraError = "ERROR_INFRA"

// Processor drives a payout through its processing state machine:
// pending -> processing -> success | failed.
//
// Business outcomes are returned as a Result with a nil error. A non-nil
// error means storage or the gateway failed and the run may be retried
// from the top.
type Processor struct {
	repo    repository.PayoutRepository
	gateway provider.PaymentGateway
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewProcessor creates a processor. cfg.ProcessingTimeout is the longest
// gateway latency still accepted as success. The latency compared is the one
// the gateway reports in its response; cfg.GatewayDelay only configures the
// simulated gateway and is not read here.
func NewProcessor(
	repo repository.PayoutRepository,
	gateway provider.PaymentGateway,
	cfg config.Processing,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Processor {
	return &Processor{
		repo:    repo,
		gateway: gateway,
		timeout: cfg.ProcessingTimeout,
		logger:  logger,
		metrics: m,
	}
}

// Process runs the processing protocol for one payout id
func (p *Processor) Process(ctx context.Context, payoutID string) (Result, error) {
	start := time.Now()
	result, err := p.process(ctx, payoutID)

	label := string(result)
	if err != nil {
		label = resultInfraError
	}
	if p.metrics != nil {
		p.metrics.RecordProcessingResult(label, time.Since(start).Seconds())
	}
	return result, err
}

func (p *Processor) process(ctx context.Context, payoutID string) (Result, error) {
	log := p.logger.With(zap.String("payoutId", payoutID))
	log.Info("Starting payout processing")

	payout, err := p.repo.GetPayout(ctx, payoutID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Error("Payout not found")
		return ResultNotFound, nil
	}
	if err != nil {
		return "", fmt.Errorf("load payout: %w", err)
	}

	// From here on payout is loaded; every write below targets it.
	payout.Status = model.PayoutStatusProcessing
	if err := p.repo.UpdatePayout(ctx, payout, repository.FieldStatus); err != nil {
		return "", fmt.Errorf("mark processing: %w", err)
	}
	log.Info("Payout status updated", zap.String("status", string(payout.Status)))

	log.Info("Waiting for gateway response", zap.String("gateway", p.gateway.Name()))
	resp, err := p.gateway.SendPayout(ctx, payout)
	if err != nil {
		return "", fmt.Errorf("gateway: %w", err)
	}

	result := ResultSuccess
	if resp.Latency > p.timeout {
		result = ResultTimeout
		payout.Status = model.PayoutStatusFailed
		payout.Comment = fmt.Sprintf("Gateway timeout: %ss > %ss", seconds(resp.Latency), seconds(p.timeout))
	} else {
		payout.Status = model.PayoutStatusSuccess
		payout.Comment = fmt.Sprintf("Successfully processed in %ss", seconds(resp.Latency))
	}

	if err := p.repo.UpdatePayout(ctx, payout, repository.FieldStatus, repository.FieldComment); err != nil {
		return "", fmt.Errorf("save result: %w", err)
	}

	log.Info("Payout processed",
		zap.String("status", string(payout.Status)),
		zap.String("result", string(result)),
		zap.String("gatewayRef", resp.Reference),
	)
	return result, nil
}

// seconds renders d in seconds with the shortest exact form: 2, 1.5, 0.25.
func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
