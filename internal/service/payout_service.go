package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/movra/payout-service/internal/metrics"
	"github.com/movra/payout-service/internal/model"
	"github.com/movra/payout-service/internal/repository"
	"go.uber.org/zap"
)

// Enqueuer schedules asynchronous processing of a payout
type Enqueuer interface {
	Enqueue(ctx context.Context, payoutID string) error
}

// PayoutService handles payout business logic
type PayoutService struct {
	repo     repository.PayoutRepository
	enqueuer Enqueuer
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewPayoutService creates a new payout service
func NewPayoutService(
	repo repository.PayoutRepository,
	enqueuer Enqueuer,
	logger *zap.Logger,
	m *metrics.Metrics,
) *PayoutService {
	return &PayoutService{
		repo:     repo,
		enqueuer: enqueuer,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// CreatePayoutRequest carries the raw create input. Nil pointers mean the
// field was absent.
type CreatePayoutRequest struct {
	Amount           *string
	Currency         *string
	RecipientDetails json.RawMessage
	Comment          *string
}

// UpdatePayoutRequest carries an administrative update. Only status and
// comment are writable after creation.
type UpdatePayoutRequest struct {
	Status  *string
	Comment *string
	// RequireStatus is set for full (PUT) updates
	RequireStatus bool
}

// CreatePayout validates and stores a new pending payout, then queues it
// for processing. A queueing failure is logged and does not fail the call.
func (s *PayoutService) CreatePayout(ctx context.Context, req *CreatePayoutRequest) (*model.Payout, error) {
	verr := &ValidationError{}
	amount := validateAmount(req.Amount, verr)
	currency := validateCurrency(req.Currency, verr)
	details := validateRecipientDetails(req.RecipientDetails, verr)
	comment := validateComment(req.Comment, verr)
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	payout := &model.Payout{
		ID:               uuid.NewString(),
		Amount:           amount,
		Currency:         currency,
		RecipientDetails: details,
		Status:           model.PayoutStatusPending,
		Comment:          comment,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.CreatePayout(ctx, payout); err != nil {
		return nil, fmt.Errorf("save payout: %w", err)
	}
	s.logger.Info("Payout created",
		zap.String("payoutId", payout.ID),
		zap.String("status", string(payout.Status)),
	)
	if s.metrics != nil {
		s.metrics.RecordPayoutCreated(string(payout.Currency))
	}

	if err := s.enqueuer.Enqueue(ctx, payout.ID); err != nil {
		s.logger.Error("Could not queue payout",
			zap.String("payoutId", payout.ID),
			zap.Error(err),
		)
		if s.metrics != nil {
			s.metrics.RecordEnqueueFailure()
		}
	} else {
		s.logger.Info("Payout sent to worker", zap.String("payoutId", payout.ID))
	}

	return payout, nil
}

// GetPayout retrieves a payout by ID
func (s *PayoutService) GetPayout(ctx context.Context, id string) (*model.Payout, error) {
	return s.repo.GetPayout(ctx, id)
}

// ListPayouts retrieves payouts with filters
func (s *PayoutService) ListPayouts(ctx context.Context, filter repository.PayoutFilter) ([]*model.Payout, error) {
	return s.repo.ListPayouts(ctx, filter)
}

// UpdatePayout applies an administrative status/comment change. Payouts in
// a final status are closed for edits.
func (s *PayoutService) UpdatePayout(ctx context.Context, id string, req *UpdatePayoutRequest) (*model.Payout, error) {
	payout, err := s.repo.GetPayout(ctx, id)
	if err != nil {
		return nil, err
	}
	current := payout.Status

	verr := &ValidationError{}
	var fields []repository.Field

	switch {
	case req.Status != nil:
		payout.Status = validateStatus(*req.Status, verr)
		fields = append(fields, repository.FieldStatus)
	case req.RequireStatus:
		verr.add("status", CodeRequired, "This field is required.")
	}
	if req.Comment != nil {
		payout.Comment = validateComment(req.Comment, verr)
		fields = append(fields, repository.FieldComment)
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	if current.IsFinal() {
		return nil, &ValidationError{Errors: []FieldError{{
			Field:  NonFieldErrors,
			Code:   CodeInvalid,
			Detail: fmt.Sprintf("Cannot change status of payout in final status %s.", current),
		}}}
	}

	if len(fields) > 0 {
		if err := s.repo.UpdatePayout(ctx, payout, fields...); err != nil {
			return nil, fmt.Errorf("update payout: %w", err)
		}
	}

	s.logger.Info("Payout status updated",
		zap.String("payoutId", payout.ID),
		zap.String("status", string(payout.Status)),
	)
	return payout, nil
}

// DeletePayout permanently removes a payout regardless of its status
func (s *PayoutService) DeletePayout(ctx context.Context, id string) error {
	if err := s.repo.DeletePayout(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Payout deleted", zap.String("payoutId", id))
	return nil
}

// IsNotFound reports whether err means the payout does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
