package grpc

import (
	"context"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	googlegrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Dial opens a plaintext, traced connection to a commerce gRPC server.
func Dial(target string, opts ...googlegrpc.DialOption) (*googlegrpc.ClientConn, error) {
	opts = append([]googlegrpc.DialOption{
		googlegrpc.WithTransportCredentials(insecure.NewCredentials()),
		googlegrpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		googlegrpc.WithDefaultCallOptions(googlegrpc.CallContentSubtype(codecName)),
	}, opts...)
	return googlegrpc.NewClient(target, opts...)
}

type CartClient struct {
	cc googlegrpc.ClientConnInterface
}

func NewCartClient(cc googlegrpc.ClientConnInterface) *CartClient {
	return &CartClient{cc: cc}
}

func (c *CartClient) GetCart(ctx context.Context, in *GetCartRequest, opts ...googlegrpc.CallOption) (*CartResponse, error) {
	return invoke[CartResponse](ctx, c.cc, CartServiceName, "GetCart", in, opts)
}

func (c *CartClient) AddItem(ctx context.Context, in *CartItemRequest, opts ...googlegrpc.CallOption) (*CartResponse, error) {
	return invoke[CartResponse](ctx, c.cc, CartServiceName, "AddItem", in, opts)
}

func (c *CartClient) UpdateItem(ctx context.Context, in *CartItemRequest, opts ...googlegrpc.CallOption) (*CartResponse, error) {
	return invoke[CartResponse](ctx, c.cc, CartServiceName, "UpdateItem", in, opts)
}

func (c *CartClient) RemoveItem(ctx context.Context, in *RemoveItemRequest, opts ...googlegrpc.CallOption) (*CartResponse, error) {
	return invoke[CartResponse](ctx, c.cc, CartServiceName, "RemoveItem", in, opts)
}

type LoyaltyClient struct {
	cc googlegrpc.ClientConnInterface
}

func NewLoyaltyClient(cc googlegrpc.ClientConnInterface) *LoyaltyClient {
	return &LoyaltyClient{cc: cc}
}

func (c *LoyaltyClient) GetBalance(ctx context.Context, in *GetBalanceRequest, opts ...googlegrpc.CallOption) (*AccountResponse, error) {
	return invoke[AccountResponse](ctx, c.cc, LoyaltyServiceName, "GetBalance", in, opts)
}

func (c *LoyaltyClient) Redeem(ctx context.Context, in *RedeemRequest, opts ...googlegrpc.CallOption) (*AccountResponse, error) {
	return invoke[AccountResponse](ctx, c.cc, LoyaltyServiceName, "Redeem", in, opts)
}

func (c *LoyaltyClient) Earn(ctx context.Context, in *EarnRequest, opts ...googlegrpc.CallOption) (*AccountResponse, error) {
	return invoke[AccountResponse](ctx, c.cc, LoyaltyServiceName, "Earn", in, opts)
}

func invoke[Resp any](
	ctx context.Context,
	cc googlegrpc.ClientConnInterface,
	service, method string,
	in any,
	opts []googlegrpc.CallOption,
) (*Resp, error) {
	out := new(Resp)
	opts = append([]googlegrpc.CallOption{googlegrpc.CallContentSubtype(codecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+service+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
