package repository

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/go_cart/commerce-service/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestPostgres(t *testing.T) *pgxpool.Pool {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	url, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := ConnectPostgres(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, NewPostgresLoyaltyRepository(pool).RunMigrations("./migrations"))
	return pool
}

func TestPostgresLoyaltyRepository(t *testing.T) {
	pool := setupTestPostgres(t)

	testLoyaltyRepository(t, func(t *testing.T) LoyaltyRepository {
		_, err := pool.Exec(context.Background(), "TRUNCATE loyalty_accounts CASCADE")
		require.NoError(t, err)
		return NewPostgresLoyaltyRepository(pool)
	})
}

func TestPostgresLoyaltyRepository_MigrationsAreIdempotent(t *testing.T) {
	pool := setupTestPostgres(t)

	assert.NoError(t, NewPostgresLoyaltyRepository(pool).RunMigrations("./migrations"))
}

func TestPostgresLoyaltyRepository_DuplicateReferenceConflicts(t *testing.T) {
	pool := setupTestPostgres(t)
	repo := NewPostgresLoyaltyRepository(pool)
	ctx := context.Background()

	account := domain.NewLoyaltyAccount(userID, now)
	_, err := account.Earn(10, "order", "evt-1", now)
	require.NoError(t, err)
	require.NoError(t, repo.SaveAccount(ctx, account))

	// bypass the in-memory dedup to hit the partial unique index
	loaded, err := repo.GetAccount(ctx, userID)
	require.NoError(t, err)
	loaded.TotalPoints += 10
	loaded.PointsHistory = append(loaded.PointsHistory, domain.PointsTransaction{
		ID: "dup-entry", Type: domain.TransactionEarned, Points: 10,
		Description: "order", Reference: "evt-1", OccurredAt: now,
	})

	assert.ErrorIs(t, repo.SaveAccount(ctx, loaded), ErrVersionConflict)

	got, err := repo.GetAccount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.TotalPoints)
	assert.Equal(t, int64(0), got.Version)
}
