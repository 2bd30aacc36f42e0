//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *PostgresRepository {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("payouts_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	pool, err := NewPostgresPool(ctx, connStr, PoolConfig{MaxConns: 4})
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	applied, err := Migrate(ctx, pool)
	if err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	require.NotEmpty(t, applied)

	// migrations are idempotent
	_, err = Migrate(ctx, pool)
	require.NoError(t, err)

	return NewPostgresRepository(pool)
}

func TestPostgresRepository_Contract(t *testing.T) {
	testRepositoryContract(t, setupPostgres(t))
}

func TestPostgresRepository_RejectsAmountBelowMinimum(t *testing.T) {
	repo := setupPostgres(t)
	p := newPayout("6f1c2d3e-4b5a-4c6d-8e9f-0a1b2c3d4e5f", time.Now().UTC(), "pending", "RUB")
	p.Amount = p.Amount.Sub(p.Amount)

	assert.Error(t, repo.CreatePayout(context.Background(), p))
}
