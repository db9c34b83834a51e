package http

import (
	"context"
	"net/http"

	"github.com/fjod/go_cart/commerce-service/internal/domain"
	"github.com/go-chi/chi/v5"
)

type LoyaltyService interface {
	GetBalance(ctx context.Context, userID string) (*domain.LoyaltyAccount, error)
	Redeem(ctx context.Context, userID string, points int64, description string) (*domain.LoyaltyAccount, error)
}

type LoyaltyHandler struct {
	service LoyaltyService
}

func NewLoyaltyHandler(service LoyaltyService) *LoyaltyHandler {
	return &LoyaltyHandler{service: service}
}

// redeemRequestDTO accepts both the legacy PointsToRedeem field and points.
type redeemRequestDTO struct {
	PointsToRedeem *int64 `json:"PointsToRedeem"`
	Points         *int64 `json:"points"`
	Description    string `json:"description"`
}

func (d redeemRequestDTO) points() int64 {
	switch {
	case d.PointsToRedeem != nil:
		return *d.PointsToRedeem
	case d.Points != nil:
		return *d.Points
	}
	return 0
}

func (h *LoyaltyHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetBalance(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondOK(w, "Loyalty points fetched successfully.", account)
}

func (h *LoyaltyHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequestDTO
	if !decodeBody(w, r, &req) {
		return
	}

	account, err := h.service.Redeem(r.Context(), chi.URLParam(r, "userId"), req.points(), req.Description)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondOK(w, "Loyalty points redeemed successfully.", account)
}
