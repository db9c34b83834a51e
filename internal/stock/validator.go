// Package stock answers whether a requested quantity of a product can be
// satisfied right now.
//
// The answer is advisory. Nothing is reserved or locked, so two carts can both
// pass the check against the same last unit. The only guarantee against
// overselling is the compare-and-decrement performed by
// catalog.Catalog.DecrementStock when an order is committed.
package stock

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/commerce-service/internal/catalog"
	"github.com/fjod/go_cart/commerce-service/internal/domain"
)

type Status int

const (
	StatusAvailable Status = iota
	StatusInsufficientStock
	StatusProductNotFound
)

func (s Status) String() string {
	switch s {
	case StatusAvailable:
		return "Available"
	case StatusInsufficientStock:
		return "InsufficientStock"
	case StatusProductNotFound:
		return "ProductNotFound"
	default:
		return "Unknown"
	}
}

// Availability is the outcome of one check. Available is the stock level the
// catalog reported and is zero for unknown products.
type Availability struct {
	ProductID string
	Requested int
	Status    Status
	Available int
}

func (a Availability) OK() bool {
	return a.Status == StatusAvailable
}

// Err converts a negative outcome into the matching domain error.
func (a Availability) Err() error {
	switch a.Status {
	case StatusInsufficientStock:
		return &domain.InsufficientStockError{ProductID: a.ProductID, Requested: a.Requested, Available: a.Available}
	case StatusProductNotFound:
		return domain.ErrProductNotFound
	default:
		return nil
	}
}

type Validator struct {
	catalog catalog.Reader
}

func NewValidator(reader catalog.Reader) *Validator {
	return &Validator{catalog: reader}
}

// CheckAvailability reads the product once and compares its stock with
// requestedQty. The returned error is only set for catalog failures; a missing
// product or short stock is reported through Status.
func (v *Validator) CheckAvailability(ctx context.Context, productID string, requestedQty int) (Availability, error) {
	result := Availability{ProductID: productID, Requested: requestedQty}

	product, err := v.catalog.GetProduct(ctx, productID)
	if errors.Is(err, domain.ErrProductNotFound) {
		result.Status = StatusProductNotFound
		return result, nil
	}
	if err != nil {
		return result, errors.Wrapf(err, "failed to read stock for product %s", productID)
	}

	result.Available = product.Stock
	if product.Stock < requestedQty {
		result.Status = StatusInsufficientStock
		return result, nil
	}
	result.Status = StatusAvailable
	return result, nil
}
