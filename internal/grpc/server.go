package grpc

import (
	"context"
	"runtime/debug"

	"github.com/fjod/go_cart/commerce-service/internal/logger"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	googlegrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// NewServer builds a gRPC server exposing the cart and loyalty services plus
// the standard health service. Callers register grpc_prometheus.DefaultServerMetrics
// with their registry to export the RPC metrics.
func NewServer(cart CartServer, loyalty LoyaltyServer, l *zap.Logger) *googlegrpc.Server {
	s := googlegrpc.NewServer(
		googlegrpc.StatsHandler(otelgrpc.NewServerHandler()),
		googlegrpc.StreamInterceptor(grpc_prometheus.StreamServerInterceptor),
		googlegrpc.ChainUnaryInterceptor(
			grpc_prometheus.UnaryServerInterceptor,
			recoverInterceptor(l),
		),
	)

	RegisterCartServer(s, cart)
	RegisterLoyaltyServer(s, loyalty)

	hs := health.NewServer()
	hs.SetServingStatus(CartServiceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(LoyaltyServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	grpc_prometheus.Register(s)
	return s
}

func recoverInterceptor(l *zap.Logger) googlegrpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *googlegrpc.UnaryServerInfo, handler googlegrpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(ctx, l, "panic in grpc handler",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
