package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/movra/payout-service/internal/config"
	"github.com/movra/payout-service/internal/model"
	"github.com/movra/payout-service/internal/provider"
	"github.com/movra/payout-service/internal/repository"
	"github.com/movra/payout-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalQueue_CreateThenProcess(t *testing.T) {
	cfg := config.Processing{
		GatewayDelay:      2 * time.Second,
		ProcessingTimeout: 10 * time.Second,
		MaxRetries:        3,
		RetryDelay:        time.Millisecond,
	}
	logger := zap.NewNop()
	repo := repository.NewMemoryRepository()
	gateway := provider.NewSimulatedGateway(cfg.GatewayDelay, provider.WithSleeper(func(time.Duration) {}))

	processor := service.NewProcessor(repo, gateway, cfg, logger, nil)
	executor := NewExecutor(processor, PolicyFromConfig(cfg), logger, nil)
	queue := NewLocalQueue(executor, 10, 2, logger)
	queue.Start(context.Background())

	svc := service.NewPayoutService(repo, queue, logger, nil)
	amount, currency := "100.00", "USD"
	created, err := svc.CreatePayout(context.Background(), &service.CreatePayoutRequest{
		Amount:           &amount,
		Currency:         &currency,
		RecipientDetails: json.RawMessage(`{"card_number":"1111222233334444"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusPending, created.Status)

	queue.Stop()

	got, err := repo.GetPayout(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusSuccess, got.Status)
	assert.Equal(t, "Successfully processed in 2s", got.Comment)
	assert.Equal(t, "100.00", got.Amount.StringFixed(2))
	assert.Equal(t, model.CurrencyUSD, got.Currency)
	assert.Equal(t, "1111222233334444", got.RecipientDetails["card_number"])
}
