package catalog

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/commerce-service/internal/domain"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// ErrCatalogUnavailable is returned without calling the source while the
// breaker is open or probing.
var ErrCatalogUnavailable = errors.New("catalog unavailable")

type BreakerSettings struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

type breakerCatalog struct {
	next Catalog
	cb   *gobreaker.CircuitBreaker[any]
}

// NewBreakerCatalog stops calling next after MaxFailures consecutive
// infrastructure failures. Not-found and insufficient-stock answers count as
// successes.
func NewBreakerCatalog(next Catalog, settings BreakerSettings, logger *zap.Logger) Catalog {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "catalog",
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domain.ErrProductNotFound) ||
				errors.Is(err, domain.ErrInsufficientStock) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &breakerCatalog{next: next, cb: cb}
}

func (b *breakerCatalog) GetProduct(ctx context.Context, productID string) (*domain.ProductSnapshot, error) {
	return executeWithBreaker(b.cb, func() (*domain.ProductSnapshot, error) {
		return b.next.GetProduct(ctx, productID)
	})
}

func (b *breakerCatalog) GetProducts(ctx context.Context, productIDs []string) (map[string]domain.ProductSnapshot, error) {
	return executeWithBreaker(b.cb, func() (map[string]domain.ProductSnapshot, error) {
		return b.next.GetProducts(ctx, productIDs)
	})
}

func (b *breakerCatalog) DecrementStock(ctx context.Context, productID string, qty int) error {
	_, err := executeWithBreaker(b.cb, func() (struct{}, error) {
		return struct{}{}, b.next.DecrementStock(ctx, productID, qty)
	})
	return err
}

func executeWithBreaker[T any](cb *gobreaker.CircuitBreaker[any], fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (any, error) {
		return fn()
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return *new(T), errors.WithSecondaryError(errors.Wrap(ErrCatalogUnavailable, "catalog breaker"), err)
	}
	if err != nil {
		return *new(T), err
	}

	return res.(T), nil
}
