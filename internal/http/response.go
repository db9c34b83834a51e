package http

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/commerce-service/internal/domain"
)

// envelope is the body of every API response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondOK(w http.ResponseWriter, message string, data any) {
	respondJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, envelope{Success: false, Message: message})
}

// respondServiceError translates a service error. Business rejections keep
// their message; insufficient stock or points also return the figures the
// caller needs to retry.
func respondServiceError(w http.ResponseWriter, err error) {
	switch domain.KindOf(err) {
	case domain.KindInvalidInput:
		respondError(w, http.StatusBadRequest, err.Error())
	case domain.KindCartNotFound:
		respondError(w, http.StatusNotFound, "Cart is empty.")
	case domain.KindItemNotFound:
		respondError(w, http.StatusNotFound, "Product not found in cart.")
	case domain.KindProductNotFound:
		respondError(w, http.StatusNotFound, "Product not found.")
	case domain.KindAccountNotFound:
		respondError(w, http.StatusNotFound, "No loyalty points found for this user")
	case domain.KindInsufficientStock:
		var stockErr *domain.InsufficientStockError
		var data any
		if errors.As(err, &stockErr) {
			data = map[string]any{
				"product_id": stockErr.ProductID,
				"requested":  stockErr.Requested,
				"available":  stockErr.Available,
			}
		}
		respondJSON(w, http.StatusBadRequest, envelope{Message: "Insufficient stock.", Data: data})
	case domain.KindInsufficientPoints:
		var pointsErr *domain.InsufficientPointsError
		var data any
		if errors.As(err, &pointsErr) {
			data = map[string]any{
				"requested": pointsErr.Requested,
				"balance":   pointsErr.Balance,
			}
		}
		respondJSON(w, http.StatusBadRequest, envelope{Message: "Insufficient loyalty points.", Data: data})
	default:
		respondError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}
