package grpc

import (
	"context"

	"github.com/fjod/go_cart/commerce-service/internal/service"
)

type LoyaltyServiceServer struct {
	service *service.LoyaltyService
}

func NewLoyaltyServiceServer(service *service.LoyaltyService) *LoyaltyServiceServer {
	return &LoyaltyServiceServer{service: service}
}

func (s *LoyaltyServiceServer) GetBalance(ctx context.Context, req *GetBalanceRequest) (*AccountResponse, error) {
	account, err := s.service.GetBalance(ctx, req.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &AccountResponse{Account: convertAccount(account)}, nil
}

func (s *LoyaltyServiceServer) Redeem(ctx context.Context, req *RedeemRequest) (*AccountResponse, error) {
	account, err := s.service.Redeem(ctx, req.UserID, req.Points, req.Description)
	if err != nil {
		return nil, toStatus(err)
	}
	return &AccountResponse{Account: convertAccount(account)}, nil
}

// Earn is the grant hook for upstream systems; Reference makes retries safe.
func (s *LoyaltyServiceServer) Earn(ctx context.Context, req *EarnRequest) (*AccountResponse, error) {
	account, err := s.service.Earn(ctx, req.UserID, req.Points, req.Description, req.Reference)
	if err != nil {
		return nil, toStatus(err)
	}
	return &AccountResponse{Account: convertAccount(account)}, nil
}
