// Package catalog reads product snapshots from the externally owned catalog.
package catalog

import (
	"context"

	"github.com/fjod/go_cart/commerce-service/internal/domain"
)

// Reader is what the cart needs from the catalog.
type Reader interface {
	// GetProduct returns domain.ErrProductNotFound when the id does not resolve.
	GetProduct(ctx context.Context, productID string) (*domain.ProductSnapshot, error)

	// GetProducts returns the snapshots that resolve; unknown ids are absent
	// from the result rather than an error.
	GetProducts(ctx context.Context, productIDs []string) (map[string]domain.ProductSnapshot, error)
}

// Catalog adds the order-commit stock decrement to Reader. The cart never
// calls DecrementStock.
type Catalog interface {
	Reader

	// DecrementStock atomically subtracts qty when at least qty units remain.
	// Returns *domain.InsufficientStockError or domain.ErrProductNotFound.
	DecrementStock(ctx context.Context, productID string, qty int) error
}
