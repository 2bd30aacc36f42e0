package repository

import (
	"context"
	"testing"
	"time"

	"github.com/movra/payout-service/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPayout(id string, created time.Time, status model.PayoutStatus, currency model.Currency) *model.Payout {
	return &model.Payout{
		ID:               id,
		Amount:           decimal.RequireFromString("25.50"),
		Currency:         currency,
		RecipientDetails: model.RecipientDetails{"card_number": "1234567890123456"},
		Status:           status,
		CreatedAt:        created,
		UpdatedAt:        created,
	}
}

func TestMemoryRepository_CreateAndGet(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	p := newPayout("p1", time.Now().UTC(), model.PayoutStatusPending, model.CurrencyRUB)

	require.NoError(t, repo.CreatePayout(ctx, p))
	assert.Error(t, repo.CreatePayout(ctx, p), "duplicate id")

	got, err := repo.GetPayout(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, p, got)

	// stored copies are isolated from the caller
	got.RecipientDetails["card_number"] = "changed"
	again, _ := repo.GetPayout(ctx, "p1")
	assert.Equal(t, "1234567890123456", again.RecipientDetails["card_number"])

	_, err = repo.GetPayout(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepository_UpdateWritesOnlyListedFields(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	written := created.Add(time.Minute)
	repo.now = func() time.Time { return written }

	require.NoError(t, repo.CreatePayout(ctx, newPayout("p1", created, model.PayoutStatusPending, model.CurrencyRUB)))

	stale, _ := repo.GetPayout(ctx, "p1")
	stale.Status = model.PayoutStatusProcessing
	stale.Comment = "should not be written"
	require.NoError(t, repo.UpdatePayout(ctx, stale, FieldStatus))
	assert.Equal(t, written, stale.UpdatedAt)

	got, _ := repo.GetPayout(ctx, "p1")
	assert.Equal(t, model.PayoutStatusProcessing, got.Status)
	assert.Equal(t, "", got.Comment)
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, written, got.UpdatedAt)

	assert.Error(t, repo.UpdatePayout(ctx, got))
	assert.Error(t, repo.UpdatePayout(ctx, got, Field("id")))

	missing := newPayout("missing", created, model.PayoutStatusPending, model.CurrencyRUB)
	assert.ErrorIs(t, repo.UpdatePayout(ctx, missing, FieldStatus), ErrNotFound)
}

func TestMemoryRepository_ListOrderFilterPage(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.CreatePayout(ctx, newPayout("old", base, model.PayoutStatusSuccess, model.CurrencyRUB)))
	require.NoError(t, repo.CreatePayout(ctx, newPayout("mid", base.Add(time.Hour), model.PayoutStatusPending, model.CurrencyUSD)))
	require.NoError(t, repo.CreatePayout(ctx, newPayout("new", base.Add(2*time.Hour), model.PayoutStatusPending, model.CurrencyRUB)))

	ids := func(ps []*model.Payout) []string {
		out := make([]string, len(ps))
		for i, p := range ps {
			out[i] = p.ID
		}
		return out
	}

	all, err := repo.ListPayouts(ctx, PayoutFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "mid", "old"}, ids(all))

	pending, _ := repo.ListPayouts(ctx, PayoutFilter{Status: model.PayoutStatusPending})
	assert.Equal(t, []string{"new", "mid"}, ids(pending))

	rub, _ := repo.ListPayouts(ctx, PayoutFilter{Currency: model.CurrencyRUB})
	assert.Equal(t, []string{"new", "old"}, ids(rub))

	page, _ := repo.ListPayouts(ctx, PayoutFilter{Limit: 1, Offset: 1})
	assert.Equal(t, []string{"mid"}, ids(page))

	past, _ := repo.ListPayouts(ctx, PayoutFilter{Offset: 10})
	assert.Empty(t, past)
}

func TestMemoryRepository_Delete(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.CreatePayout(ctx, newPayout("p1", time.Now(), model.PayoutStatusFailed, model.CurrencyEUR)))

	require.NoError(t, repo.DeletePayout(ctx, "p1"))
	assert.ErrorIs(t, repo.DeletePayout(ctx, "p1"), ErrNotFound)
	_, err := repo.GetPayout(ctx, "p1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, repo.Ping(ctx))
}
