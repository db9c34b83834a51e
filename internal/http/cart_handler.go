package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/fjod/go_cart/commerce-service/internal/domain"
	"github.com/go-chi/chi/v5"
)

const maxRequestBodySize = 1 << 20

type CartService interface {
	GetCart(ctx context.Context, userID string) (*domain.CartView, error)
	AddItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error)
	UpdateItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error)
}

type CartHandler struct {
	service CartService
}

func NewCartHandler(service CartService) *CartHandler {
	return &CartHandler{service: service}
}

// cartItemRequestDTO is the body of the item routes; the product comes from
// the path. Quantity is a pointer so that a missing value is told apart from 0.
type cartItemRequestDTO struct {
	UserID   string `json:"userId"`
	Quantity *int   `json:"quantity"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.service.GetCart(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondOK(w, "Cart fetched successfully.", cart)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequestDTO
	if !decodeBody(w, r, &req) {
		return
	}

	quantity := 0
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	cart, err := h.service.AddItem(r.Context(), req.UserID, chi.URLParam(r, "id"), quantity)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondOK(w, "Product added to cart successfully.", cart)
}

func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequestDTO
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "Quantity must be zero or greater.")
		return
	}

	cart, err := h.service.UpdateItem(r.Context(), req.UserID, chi.URLParam(r, "id"), *req.Quantity)
	if err != nil {
		respondMutationError(w, err)
		return
	}
	respondOK(w, "Cart updated successfully.", cart)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequestDTO
	if !decodeBody(w, r, &req) {
		return
	}

	cart, err := h.service.RemoveItem(r.Context(), req.UserID, chi.URLParam(r, "id"))
	if err != nil {
		respondMutationError(w, err)
		return
	}
	respondOK(w, "Product removed from cart successfully.", cart)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body.")
		return false
	}
	return true
}

// respondMutationError reports a missing cart on update and remove as not
// found rather than empty.
func respondMutationError(w http.ResponseWriter, err error) {
	if domain.KindOf(err) == domain.KindCartNotFound {
		respondError(w, http.StatusNotFound, "Cart not found.")
		return
	}
	respondServiceError(w, err)
}
