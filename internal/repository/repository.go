package repository

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/commerce-service/internal/domain"
)

var (
	ErrCartNotFound    = domain.ErrCartNotFound
	ErrAccountNotFound = domain.ErrAccountNotFound
	// ErrVersionConflict means the aggregate changed since it was loaded.
	ErrVersionConflict = errors.New("version conflict")
)

// CartRepository defines the interface for cart data operations
// Consumers define this interface, not the MongoDB implementation
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	// SaveCart inserts the cart when it has no ID, otherwise replaces it if
	// the stored version still equals cart.Version. On success cart.ID and
	// cart.Version reflect the stored document.
	SaveCart(ctx context.Context, cart *domain.Cart) error
}

// LoyaltyRepository persists LoyaltyAccount aggregates with the same
// compare-and-swap contract as CartRepository.SaveCart.
type LoyaltyRepository interface {
	GetAccount(ctx context.Context, userID string) (*domain.LoyaltyAccount, error)
	SaveAccount(ctx context.Context, account *domain.LoyaltyAccount) error
}
