package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/commerce-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// cachedCatalog is a read-through Redis cache in front of another Catalog.
// Cached stock may lag the source by up to the TTL, so it serves display
// reads only; stock checks use the uncached reader.
type cachedCatalog struct {
	next        Catalog
	redisClient *redis.Client
	cacheTTL    time.Duration
	logger      *zap.Logger
}

func NewCachedCatalog(next Catalog, redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) Catalog {
	return &cachedCatalog{
		next:        next,
		redisClient: redisClient,
		cacheTTL:    ttl,
		logger:      logger,
	}
}

func (s *cachedCatalog) GetProduct(ctx context.Context, productID string) (*domain.ProductSnapshot, error) {
	key := productKey(productID)

	val, err := s.redisClient.Get(ctx, key).Bytes()
	if err == nil {
		var product domain.ProductSnapshot
		if errUnmarshal := json.Unmarshal(val, &product); errUnmarshal == nil {
			return &product, nil
		}
		s.logger.Warn("dropping unreadable product cache entry", zap.String("key", key))
	} else if !errors.Is(err, redis.Nil) {
		s.logger.Warn("product cache get failed", zap.String("key", key), zap.Error(err))
	}

	product, err := s.next.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	s.store(ctx, product)
	return product, nil
}

func (s *cachedCatalog) GetProducts(ctx context.Context, productIDs []string) (map[string]domain.ProductSnapshot, error) {
	result := make(map[string]domain.ProductSnapshot, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	keys := make([]string, len(productIDs))
	for i, id := range productIDs {
		keys[i] = productKey(id)
	}

	var misses []string
	values, err := s.redisClient.MGet(ctx, keys...).Result()
	if err != nil {
		s.logger.Warn("product cache mget failed", zap.Error(err))
		misses = productIDs
	} else {
		for i, v := range values {
			raw, ok := v.(string)
			var product domain.ProductSnapshot
			if !ok || json.Unmarshal([]byte(raw), &product) != nil {
				misses = append(misses, productIDs[i])
				continue
			}
			result[productIDs[i]] = product
		}
	}

	if len(misses) == 0 {
		return result, nil
	}
	fetched, err := s.next.GetProducts(ctx, misses)
	if err != nil {
		return nil, err
	}
	for id, product := range fetched {
		p := product
		s.store(ctx, &p)
		result[id] = product
	}
	return result, nil
}

func (s *cachedCatalog) DecrementStock(ctx context.Context, productID string, qty int) error {
	err := s.next.DecrementStock(ctx, productID, qty)
	if err != nil {
		return err
	}

	s.redisClient.Del(ctx, productKey(productID))
	return nil
}

func (s *cachedCatalog) store(ctx context.Context, product *domain.ProductSnapshot) {
	data, err := json.Marshal(product)
	if err != nil {
		return
	}
	if err := s.redisClient.Set(ctx, productKey(product.ID), data, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("product cache set failed", zap.String("product_id", product.ID), zap.Error(err))
	}
}

func productKey(productID string) string {
	return fmt.Sprintf("product:%s", productID)
}
