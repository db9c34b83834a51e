package domain

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrCartNotFound       = errors.New("cart not found")
	ErrItemNotFound       = errors.New("item not found in cart")
	ErrAccountNotFound    = errors.New("loyalty account not found")
	ErrProductNotFound    = errors.New("product not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInsufficientPoints = errors.New("insufficient loyalty points")
	ErrConcurrentUpdate   = errors.New("aggregate modified concurrently")
	ErrInternal           = errors.New("internal error")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// InsufficientStockError carries the stock available when the check ran.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// InsufficientPointsError carries the balance at the time of the attempt.
type InsufficientPointsError struct {
	Requested int64
	Balance   int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient loyalty points: requested %d, balance %d", e.Requested, e.Balance)
}

func (e *InsufficientPointsError) Is(target error) bool {
	return target == ErrInsufficientPoints
}

// Internal marks err as an internal failure. The wrapped detail is meant for
// logs, never for callers.
func Internal(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrInternal)
}

type Kind string

const (
	KindInvalidInput       Kind = "InvalidInput"
	KindCartNotFound       Kind = "CartNotFound"
	KindItemNotFound       Kind = "ItemNotFound"
	KindAccountNotFound    Kind = "AccountNotFound"
	KindProductNotFound    Kind = "ProductNotFound"
	KindInsufficientStock  Kind = "InsufficientStock"
	KindInsufficientPoints Kind = "InsufficientPoints"
	KindInternal           Kind = "Internal"
)

// KindOf classifies err. Anything unrecognised is Internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInternal):
		return KindInternal
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrCartNotFound):
		return KindCartNotFound
	case errors.Is(err, ErrItemNotFound):
		return KindItemNotFound
	case errors.Is(err, ErrAccountNotFound):
		return KindAccountNotFound
	case errors.Is(err, ErrProductNotFound):
		return KindProductNotFound
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrInsufficientPoints):
		return KindInsufficientPoints
	default:
		return KindInternal
	}
}

// IsNotFound reports whether err belongs to the not-found family.
func IsNotFound(err error) bool {
	switch KindOf(err) {
	case KindCartNotFound, KindItemNotFound, KindAccountNotFound, KindProductNotFound:
		return true
	}
	return false
}
