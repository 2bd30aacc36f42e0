package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/movra/payout-service/internal/model"
	"github.com/movra/payout-service/internal/repository"
	"go.uber.org/zap"
)

// recordingEnqueuer remembers every payout id it was asked to queue
type recordingEnqueuer struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (e *recordingEnqueuer) Enqueue(ctx context.Context, payoutID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, payoutID)
	return e.err
}

func strPtr(s string) *string { return &s }

func validCreateRequest() *CreatePayoutRequest {
	return &CreatePayoutRequest{
		Amount:           strPtr("100.00"),
		Currency:         strPtr("USD"),
		RecipientDetails: json.RawMessage(`{"card_number": "1234 5678 9012 3456", "holder": "Test User"}`),
		Comment:          strPtr("first payout"),
	}
}

func newTestService(t *testing.T, enq Enqueuer) (*PayoutService, *repository.MemoryRepository) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	logger, _ := zap.NewDevelopment()
	return NewPayoutService(repo, enq, logger, nil), repo
}

func TestPayoutService_CreatePayout_Success(t *testing.T) {
	enq := &recordingEnqueuer{}
	svc, repo := newTestService(t, enq)

	payout, err := svc.CreatePayout(context.Background(), validCreateRequest())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if payout.Status != model.PayoutStatusPending {
		t.Errorf("expected status pending, got: %s", payout.Status)
	}
	if payout.Amount.StringFixed(2) != "100.00" {
		t.Errorf("expected amount 100.00, got: %s", payout.Amount)
	}
	if payout.CreatedAt.IsZero() || !payout.CreatedAt.Equal(payout.UpdatedAt) {
		t.Errorf("expected created_at == updated_at, got %v and %v", payout.CreatedAt, payout.UpdatedAt)
	}

	if len(enq.ids) != 1 || enq.ids[0] != payout.ID {
		t.Fatalf("expected exactly one enqueue for %s, got: %v", payout.ID, enq.ids)
	}

	stored, err := repo.GetPayout(context.Background(), payout.ID)
	if err != nil {
		t.Fatalf("expected stored payout, got: %v", err)
	}
	if stored.RecipientDetails["holder"] != "Test User" {
		t.Errorf("expected recipient details to round-trip, got: %v", stored.RecipientDetails)
	}
}

func TestPayoutService_CreatePayout_DefaultCurrency(t *testing.T) {
	svc, _ := newTestService(t, &recordingEnqueuer{})

	req := validCreateRequest()
	req.Currency = nil

	payout, err := svc.CreatePayout(context.Background(), req)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if payout.Currency != model.CurrencyRUB {
		t.Errorf("expected currency RUB, got: %s", payout.Currency)
	}
}

func TestPayoutService_CreatePayout_EnqueueFailure(t *testing.T) {
	enq := &recordingEnqueuer{err: errors.New("broker unreachable")}
	svc, repo := newTestService(t, enq)

	payout, err := svc.CreatePayout(context.Background(), validCreateRequest())
	if err != nil {
		t.Fatalf("expected create to succeed despite queue failure, got: %v", err)
	}

	stored, err := repo.GetPayout(context.Background(), payout.ID)
	if err != nil {
		t.Fatalf("expected payout to stay stored, got: %v", err)
	}
	if stored.Status != model.PayoutStatusPending {
		t.Errorf("expected status pending, got: %s", stored.Status)
	}
}

func TestPayoutService_CreatePayout_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreatePayoutRequest)
		field  string
		code   string
	}{
		{"zero amount", func(r *CreatePayoutRequest) { r.Amount = strPtr("0.00") }, "amount", CodeMinValue},
		{"negative amount", func(r *CreatePayoutRequest) { r.Amount = strPtr("-50.00") }, "amount", CodeMinValue},
		{"unsupported currency", func(r *CreatePayoutRequest) { r.Currency = strPtr("GBP") }, "currency", CodeInvalidChoice},
		{"short card", func(r *CreatePayoutRequest) {
			r.RecipientDetails = json.RawMessage(`{"card_number": "1234"}`)
		}, "recipient_details", CodeInvalid},
		{"missing recipient", func(r *CreatePayoutRequest) { r.RecipientDetails = nil }, "recipient_details", CodeRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enq := &recordingEnqueuer{}
			svc, repo := newTestService(t, enq)

			req := validCreateRequest()
			tt.mutate(req)

			_, err := svc.CreatePayout(context.Background(), req)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got: %v", err)
			}
			if len(verr.Errors) != 1 || verr.Errors[0].Field != tt.field || verr.Errors[0].Code != tt.code {
				t.Errorf("expected %s/%s, got: %+v", tt.field, tt.code, verr.Errors)
			}

			if len(enq.ids) != 0 {
				t.Errorf("expected nothing to be queued, got: %v", enq.ids)
			}
			all, _ := repo.ListPayouts(context.Background(), repository.PayoutFilter{})
			if len(all) != 0 {
				t.Errorf("expected nothing stored, got %d payouts", len(all))
			}
		})
	}
}

func TestPayoutService_UpdatePayout(t *testing.T) {
	svc, _ := newTestService(t, &recordingEnqueuer{})
	ctx := context.Background()

	created, _ := svc.CreatePayout(ctx, validCreateRequest())

	updated, err := svc.UpdatePayout(ctx, created.ID, &UpdatePayoutRequest{Status: strPtr("processing")})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if updated.Status != model.PayoutStatusProcessing {
		t.Errorf("expected status processing, got: %s", updated.Status)
	}
	if updated.Comment != "first payout" {
		t.Errorf("expected comment untouched, got: %q", updated.Comment)
	}

	// processing is not final, so an operator may move it back
	back, err := svc.UpdatePayout(ctx, created.ID, &UpdatePayoutRequest{Status: strPtr("pending"), Comment: strPtr("requeue")})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if back.Status != model.PayoutStatusPending || back.Comment != "requeue" {
		t.Errorf("expected pending/requeue, got: %s/%q", back.Status, back.Comment)
	}
}

func TestPayoutService_UpdatePayout_FinalStatus(t *testing.T) {
	svc, repo := newTestService(t, &recordingEnqueuer{})
	ctx := context.Background()

	created, _ := svc.CreatePayout(ctx, validCreateRequest())
	if _, err := svc.UpdatePayout(ctx, created.ID, &UpdatePayoutRequest{Status: strPtr("success")}); err != nil {
		t.Fatalf("expected move to success to be allowed, got: %v", err)
	}

	_, err := svc.UpdatePayout(ctx, created.ID, &UpdatePayoutRequest{Status: strPtr("pending")})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got: %v", err)
	}
	if verr.Errors[0].Field != NonFieldErrors {
		t.Errorf("expected non_field_errors, got: %s", verr.Errors[0].Field)
	}
	if !strings.Contains(verr.Errors[0].Detail, "final status success") {
		t.Errorf("unexpected detail: %s", verr.Errors[0].Detail)
	}

	stored, _ := repo.GetPayout(ctx, created.ID)
	if stored.Status != model.PayoutStatusSuccess {
		t.Errorf("expected status success to be kept, got: %s", stored.Status)
	}
}

func TestPayoutService_UpdatePayout_RequireStatus(t *testing.T) {
	svc, _ := newTestService(t, &recordingEnqueuer{})
	ctx := context.Background()

	created, _ := svc.CreatePayout(ctx, validCreateRequest())

	_, err := svc.UpdatePayout(ctx, created.ID, &UpdatePayoutRequest{Comment: strPtr("x"), RequireStatus: true})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got: %v", err)
	}
	if verr.Errors[0].Field != "status" || verr.Errors[0].Code != CodeRequired {
		t.Errorf("expected status/required, got: %+v", verr.Errors)
	}
}

func TestPayoutService_UpdatePayout_InvalidStatus(t *testing.T) {
	svc, _ := newTestService(t, &recordingEnqueuer{})
	ctx := context.Background()

	created, _ := svc.CreatePayout(ctx, validCreateRequest())

	_, err := svc.UpdatePayout(ctx, created.ID, &UpdatePayoutRequest{Status: strPtr("done")})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got: %v", err)
	}
	if verr.Errors[0].Code != CodeInvalidChoice {
		t.Errorf("expected invalid_choice, got: %s", verr.Errors[0].Code)
	}
}

func TestPayoutService_UpdatePayout_NotFound(t *testing.T) {
	svc, _ := newTestService(t, &recordingEnqueuer{})

	_, err := svc.UpdatePayout(context.Background(), "missing", &UpdatePayoutRequest{Status: strPtr("pending")})
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got: %v", err)
	}
}

func TestPayoutService_DeletePayout(t *testing.T) {
	svc, _ := newTestService(t, &recordingEnqueuer{})
	ctx := context.Background()

	created, _ := svc.CreatePayout(ctx, validCreateRequest())
	if _, err := svc.UpdatePayout(ctx, created.ID, &UpdatePayoutRequest{Status: strPtr("failed")}); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// final payouts can still be deleted
	if err := svc.DeletePayout(ctx, created.ID); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if _, err := svc.GetPayout(ctx, created.ID); !IsNotFound(err) {
		t.Errorf("expected not found after delete, got: %v", err)
	}
	if err := svc.DeletePayout(ctx, created.ID); !IsNotFound(err) {
		t.Errorf("expected second delete to report not found, got: %v", err)
	}
}
