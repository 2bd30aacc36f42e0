package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/movra/payout-service/internal/model"
)

// MemoryRepository keeps payouts in process memory. It backs
// STORE_DRIVER=memory and the unit tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	payouts map[string]*model.Payout
	now     func() time.Time
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		payouts: make(map[string]*model.Payout),
		now:     time.Now,
	}
}

func (r *MemoryRepository) CreatePayout(ctx context.Context, payout *model.Payout) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.payouts[payout.ID]; exists {
		return fmt.Errorf("create payout: duplicate id %s", payout.ID)
	}
	r.payouts[payout.ID] = payout.Clone()
	return nil
}

func (r *MemoryRepository) GetPayout(ctx context.Context, id string) (*model.Payout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payouts[id]
	if !ok {
		return nil, fmt.Errorf("get payout %s: %w", id, ErrNotFound)
	}
	return p.Clone(), nil
}

func (r *MemoryRepository) ListPayouts(ctx context.Context, filter PayoutFilter) ([]*model.Payout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payouts := make([]*model.Payout, 0, len(r.payouts))
	for _, p := range r.payouts {
		if filter.Match(p) {
			payouts = append(payouts, p.Clone())
		}
	}
	sort.Slice(payouts, func(i, j int) bool {
		return payouts[i].CreatedAt.After(payouts[j].CreatedAt)
	})
	return filter.page(payouts), nil
}

func (r *MemoryRepository) UpdatePayout(ctx context.Context, payout *model.Payout, fields ...Field) error {
	if err := validateFields(fields); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.payouts[payout.ID]
	if !ok {
		return fmt.Errorf("update payout %s: %w", payout.ID, ErrNotFound)
	}

	for _, f := range fields {
		switch f {
		case FieldAmount:
			stored.Amount = payout.Amount
		case FieldCurrency:
			stored.Currency = payout.Currency
		case FieldRecipientDetails:
			stored.RecipientDetails = payout.Clone().RecipientDetails
		case FieldStatus:
			stored.Status = payout.Status
		case FieldComment:
			stored.Comment = payout.Comment
		}
	}
	payout.UpdatedAt = r.now().UTC()
	stored.UpdatedAt = payout.UpdatedAt
	return nil
}

func (r *MemoryRepository) DeletePayout(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.payouts[id]; !ok {
		return fmt.Errorf("delete payout %s: %w", id, ErrNotFound)
	}
	delete(r.payouts, id)
	return nil
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}
