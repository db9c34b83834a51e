package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/commerce-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = 15 * time.Minute

// setIfNewer stores the cart only when no entry with the same or a higher
// version is cached. KEYS[1] cart key, ARGV version, payload, ttl in ms.
var setIfNewer = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'v')
if current and tonumber(current) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// NewRedisCache caches carts for baseTTL plus up to four minutes of jitter.
// A zero baseTTL uses 15 minutes.
func NewRedisCache(client *redis.Client, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = defaultTTL
	}
	return &RedisCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r *RedisCache) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	key := cacheKey(userID)

	data, err := r.client.HGet(ctx, key, "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get failed")
	}

	var cart domain.Cart
	if err2 := json.Unmarshal(data, &cart); err2 != nil {
		return nil, errors.Wrap(err2, "unmarshal cart failed")
	}

	return &cart, nil
}

// Set keeps whichever of the cached and the given cart has the higher
// Version, so a slow reader cannot overwrite a newer cart written by a
// mutation.
func (r *RedisCache) Set(ctx context.Context, userID string, cart *domain.Cart) error {
	key := cacheKey(userID)
	jsonCart, err := json.Marshal(cart)
	if err != nil {
		return errors.Wrap(err, "marshal cart failed")
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	ttl := r.baseTTL + jitter
	err = setIfNewer.Run(ctx, r.client, []string{key}, cart.Version, string(jsonCart), ttl.Milliseconds()).Err()
	if err != nil {
		return errors.Wrap(err, "redis set failed")
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, userID string) error {
	key := cacheKey(userID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrap(err, "redis delete failed")
	}

	return nil
}

func cacheKey(userID string) string {
	return fmt.Sprintf("cart:%s", userID)
}
