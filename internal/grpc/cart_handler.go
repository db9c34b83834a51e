package grpc

import (
	"context"

	"github.com/fjod/go_cart/commerce-service/internal/service"
)

type CartServiceServer struct {
	service *service.CartService
}

func NewCartServiceServer(service *service.CartService) *CartServiceServer {
	return &CartServiceServer{service: service}
}

func (s *CartServiceServer) GetCart(ctx context.Context, req *GetCartRequest) (*CartResponse, error) {
	view, err := s.service.GetCart(ctx, req.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &CartResponse{Cart: convertCartView(view)}, nil
}

func (s *CartServiceServer) AddItem(ctx context.Context, req *CartItemRequest) (*CartResponse, error) {
	cart, err := s.service.AddItem(ctx, req.UserID, req.ProductID, req.Quantity)
	if err != nil {
		return nil, toStatus(err)
	}
	return &CartResponse{Cart: convertCart(cart)}, nil
}

func (s *CartServiceServer) UpdateItem(ctx context.Context, req *CartItemRequest) (*CartResponse, error) {
	cart, err := s.service.UpdateItem(ctx, req.UserID, req.ProductID, req.Quantity)
	if err != nil {
		return nil, toStatus(err)
	}
	return &CartResponse{Cart: convertCart(cart)}, nil
}

func (s *CartServiceServer) RemoveItem(ctx context.Context, req *RemoveItemRequest) (*CartResponse, error) {
	cart, err := s.service.RemoveItem(ctx, req.UserID, req.ProductID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &CartResponse{Cart: convertCart(cart)}, nil
}
