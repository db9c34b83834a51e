package cache

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/commerce-service/internal/domain"
)

// CartCache holds stored carts by user. Set must not replace a cached cart
// with one of a lower Version; mutations write the saved cart through.
type CartCache interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Set(ctx context.Context, userID string, cart *domain.Cart) error
	Delete(ctx context.Context, userID string) error
}

var ErrCacheMiss = errors.New("cache miss")

// NopCache never stores anything. It stands in when no Redis is configured.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (*domain.Cart, error) { return nil, ErrCacheMiss }

func (NopCache) Set(context.Context, string, *domain.Cart) error { return nil }

func (NopCache) Delete(context.Context, string) error { return nil }
