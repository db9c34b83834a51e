package grpc

import (
	"context"

	googlegrpc "google.golang.org/grpc"
)

const (
	CartServiceName    = "commerce.v1.CartService"
	LoyaltyServiceName = "commerce.v1.LoyaltyService"
)

type CartServer interface {
	GetCart(context.Context, *GetCartRequest) (*CartResponse, error)
	AddItem(context.Context, *CartItemRequest) (*CartResponse, error)
	UpdateItem(context.Context, *CartItemRequest) (*CartResponse, error)
	RemoveItem(context.Context, *RemoveItemRequest) (*CartResponse, error)
}

type LoyaltyServer interface {
	GetBalance(context.Context, *GetBalanceRequest) (*AccountResponse, error)
	Redeem(context.Context, *RedeemRequest) (*AccountResponse, error)
	Earn(context.Context, *EarnRequest) (*AccountResponse, error)
}

var cartServiceDesc = googlegrpc.ServiceDesc{
	ServiceName: CartServiceName,
	HandlerType: (*CartServer)(nil),
	Methods: []googlegrpc.MethodDesc{
		unaryMethod(CartServiceName, "GetCart", CartServer.GetCart),
		unaryMethod(CartServiceName, "AddItem", CartServer.AddItem),
		unaryMethod(CartServiceName, "UpdateItem", CartServer.UpdateItem),
		unaryMethod(CartServiceName, "RemoveItem", CartServer.RemoveItem),
	},
	Metadata: "commerce/v1/cart",
}

var loyaltyServiceDesc = googlegrpc.ServiceDesc{
	ServiceName: LoyaltyServiceName,
	HandlerType: (*LoyaltyServer)(nil),
	Methods: []googlegrpc.MethodDesc{
		unaryMethod(LoyaltyServiceName, "GetBalance", LoyaltyServer.GetBalance),
		unaryMethod(LoyaltyServiceName, "Redeem", LoyaltyServer.Redeem),
		unaryMethod(LoyaltyServiceName, "Earn", LoyaltyServer.Earn),
	},
	Metadata: "commerce/v1/loyalty",
}

func RegisterCartServer(s googlegrpc.ServiceRegistrar, srv CartServer) {
	s.RegisterService(&cartServiceDesc, srv)
}

func RegisterLoyaltyServer(s googlegrpc.ServiceRegistrar, srv LoyaltyServer) {
	s.RegisterService(&loyaltyServiceDesc, srv)
}

// unaryMethod builds the descriptor protoc would generate for one unary RPC,
// decoding into Req and running the server's interceptor chain.
func unaryMethod[S any, Req any, Resp any](
	service, method string,
	call func(S, context.Context, *Req) (*Resp, error),
) googlegrpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return googlegrpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor googlegrpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &googlegrpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
