package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_cart/commerce-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	userID   = "64b7f0c2a1b2c3d4e5f6a001"
	productA = "64b7f0c2a1b2c3d4e5f6c001"
	productB = "64b7f0c2a1b2c3d4e5f6c002"
)

// setupTestRedis creates a miniredis server and returns a RedisCache instance
func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return NewRedisCache(client, 0), mr
}

func TestGet_Success(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	cart := &domain.Cart{
		ID:     "cart-1",
		UserID: userID,
		Items: []domain.CartItem{
			{ProductID: productA, Quantity: 2},
			{ProductID: productB, Quantity: 3},
		},
		Version:   4,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	cartJSON, _ := json.Marshal(cart)
	mr.HSet(cacheKey(userID), "v", "4", "data", string(cartJSON))

	result, err := cache.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, userID, result.UserID)
	assert.Equal(t, int64(4), result.Version)
	assert.Len(t, result.Items, 2)
	assert.Equal(t, productA, result.Items[0].ProductID)
}

func TestGet_CacheMiss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	result, err := cache.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, result)
}

func TestGet_InvalidJSON(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.HSet(cacheKey(userID), "data", `{"user_id":`)

	_, err := cache.Get(context.Background(), userID)
	require.ErrorContains(t, err, "unmarshal cart failed")
}

func TestGet_RedisDown(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.Close()

	_, err := cache.Get(context.Background(), userID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestSet_Success(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	cart := &domain.Cart{
		UserID: userID,
		Items:  []domain.CartItem{{ProductID: productA, Quantity: 5}},
	}

	require.NoError(t, cache.Set(ctx, userID, cart))

	stored := mr.HGet(cacheKey(userID), "data")

	var storedCart domain.Cart
	require.NoError(t, json.Unmarshal([]byte(stored), &storedCart))
	assert.Equal(t, userID, storedCart.UserID)
	assert.Len(t, storedCart.Items, 1)
}

func TestSet_KeepsNewerVersion(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	newer := &domain.Cart{UserID: userID, Version: 3, Items: []domain.CartItem{{ProductID: productA, Quantity: 2}}}
	older := &domain.Cart{UserID: userID, Version: 2, Items: []domain.CartItem{{ProductID: productA, Quantity: 1}}}

	require.NoError(t, cache.Set(ctx, userID, newer))
	require.NoError(t, cache.Set(ctx, userID, older))

	got, err := cache.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.Equal(t, "3", mr.HGet(cacheKey(userID), "v"))
}

func TestSet_ReplacesOlderVersion(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, userID, &domain.Cart{UserID: userID, Version: 0}))
	require.NoError(t, cache.Set(ctx, userID, &domain.Cart{UserID: userID, Version: 1,
		Items: []domain.CartItem{{ProductID: productB, Quantity: 7}}}))

	got, err := cache.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 7, got.Items[0].Quantity)
}

func TestSet_WithTTL(t *testing.T) {
	cache, mr := setupTestRedis(t)

	require.NoError(t, cache.Set(context.Background(), userID, &domain.Cart{UserID: userID}))

	ttl := mr.TTL(cacheKey(userID))
	assert.GreaterOrEqual(t, ttl, 15*time.Minute, "TTL should be at least base TTL")
	assert.LessOrEqual(t, ttl, 19*time.Minute, "TTL should be base + max jitter")
}

func TestSet_RedisDown(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.Close()

	err := cache.Set(context.Background(), userID, &domain.Cart{UserID: userID})
	require.ErrorContains(t, err, "redis set failed")
}

func TestDelete_Success(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(cacheKey(userID), `{}`))

	require.NoError(t, cache.Delete(context.Background(), userID))
	assert.False(t, mr.Exists(cacheKey(userID)))
}

func TestDelete_NonExistentKey(t *testing.T) {
	cache, _ := setupTestRedis(t)

	assert.NoError(t, cache.Delete(context.Background(), "nonexistent"))
}

func TestCacheKey_Format(t *testing.T) {
	assert.Equal(t, "cart:test123", cacheKey("test123"))
}
