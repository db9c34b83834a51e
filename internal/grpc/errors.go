package grpc

import (
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/commerce-service/internal/catalog"
	"github.com/fjod/go_cart/commerce-service/internal/domain"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errorDomain scopes the ErrorInfo reasons attached to failed calls.
const errorDomain = "commerce.v1"

// toStatus maps a service error onto a gRPC status. The error kind travels as
// an ErrorInfo reason, together with the stock or balance that caused a
// rejection. Internal failures expose no detail; an open catalog breaker is
// reported as Unavailable so callers may retry.
func toStatus(err error) error {
	kind := domain.KindOf(err)

	code := codes.Internal
	msg := "internal error"
	switch kind {
	case domain.KindInternal:
		if errors.Is(err, catalog.ErrCatalogUnavailable) {
			code, msg = codes.Unavailable, "catalog unavailable"
		}
	case domain.KindInvalidInput:
		code, msg = codes.InvalidArgument, err.Error()
	case domain.KindCartNotFound, domain.KindItemNotFound, domain.KindAccountNotFound, domain.KindProductNotFound:
		code, msg = codes.NotFound, err.Error()
	case domain.KindInsufficientStock, domain.KindInsufficientPoints:
		code, msg = codes.FailedPrecondition, err.Error()
	}

	st := status.New(code, msg)
	info := &errdetails.ErrorInfo{
		Reason:   string(kind),
		Domain:   errorDomain,
		Metadata: errorMetadata(err),
	}
	if detailed, derr := st.WithDetails(info); derr == nil {
		st = detailed
	}
	return st.Err()
}

func errorMetadata(err error) map[string]string {
	var (
		stockErr  *domain.InsufficientStockError
		pointsErr *domain.InsufficientPointsError
		validErr  *domain.ValidationError
	)
	switch {
	case errors.As(err, &stockErr):
		return map[string]string{
			"product_id": stockErr.ProductID,
			"requested":  strconv.Itoa(stockErr.Requested),
			"available":  strconv.Itoa(stockErr.Available),
		}
	case errors.As(err, &pointsErr):
		return map[string]string{
			"requested": strconv.FormatInt(pointsErr.Requested, 10),
			"balance":   strconv.FormatInt(pointsErr.Balance, 10),
		}
	case errors.As(err, &validErr):
		return map[string]string{"field": validErr.Field}
	}
	return nil
}

// ErrorInfo extracts the ErrorInfo detail from an error returned by a client
// call, or nil when there is none.
func ErrorInfo(err error) *errdetails.ErrorInfo {
	st, ok := status.FromError(err)
	if !ok {
		return nil
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return info
		}
	}
	return nil
}
