package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/fjod/go_cart/commerce-service/internal/cache"
	"github.com/fjod/go_cart/commerce-service/internal/catalog"
	"github.com/fjod/go_cart/commerce-service/internal/domain"
	"github.com/fjod/go_cart/commerce-service/internal/repository"
	"github.com/fjod/go_cart/commerce-service/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	googlegrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const (
	userID    = "64b7f0c2a1b2c3d4e5f6a001"
	laptopID  = "64b7f0c2a1b2c3d4e5f6c001"
	missingID = "64b7f0c2a1b2c3d4e5f6c0ff"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	cart    *CartClient
	loyalty *LoyaltyClient
	conn    *googlegrpc.ClientConn
	catalog *catalog.MemoryCatalog
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()

	products := catalog.NewMemoryCatalog()
	products.SetProduct(domain.ProductSnapshot{
		ID:    laptopID,
		Name:  "Laptop",
		Price: decimal.RequireFromString("999.90"),
		Stock: 5,
	})

	clock := service.WithClock(func() time.Time { return fixedNow })
	cartSvc := service.NewCartService(repository.NewMemoryCartRepository(), cache.NopCache{}, products, zap.NewNop(), clock)
	loyaltySvc := service.NewLoyaltyService(repository.NewMemoryLoyaltyRepository(), zap.NewNop(), clock)

	srv := NewServer(NewCartServiceServer(cartSvc), NewLoyaltyServiceServer(loyaltySvc), zap.NewNop())
	lis := bufconn.Listen(1024 * 1024)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	conn, err := Dial("passthrough:///bufnet",
		googlegrpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &testEnv{
		cart:    NewCartClient(conn),
		loyalty: NewLoyaltyClient(conn),
		conn:    conn,
		catalog: products,
	}
}

func TestAddItem_ThenGetCartReturnsEnrichedLine(t *testing.T) {
	env := setupServer(t)
	ctx := context.Background()

	added, err := env.cart.AddItem(ctx, &CartItemRequest{UserID: userID, ProductID: laptopID, Quantity: 2})
	require.NoError(t, err)
	require.Len(t, added.Cart.Items, 1)
	assert.Equal(t, 2, added.Cart.Items[0].Quantity)
	assert.Nil(t, added.Cart.Items[0].Product)

	got, err := env.cart.GetCart(ctx, &GetCartRequest{UserID: userID})
	require.NoError(t, err)
	require.Len(t, got.Cart.Items, 1)
	item := got.Cart.Items[0]
	require.NotNil(t, item.Product)
	assert.Equal(t, "Laptop", item.Product.Name)
	assert.Equal(t, "999.9", item.Product.Price)
	assert.Equal(t, "2024-03-01T12:00:00Z", item.AddedAt)
	assert.False(t, item.Unavailable)
}

func TestAddItem_InsufficientStockCarriesAvailable(t *testing.T) {
	env := setupServer(t)

	_, err := env.cart.AddItem(context.Background(), &CartItemRequest{UserID: userID, ProductID: laptopID, Quantity: 9})
	require.Error(t, err)

	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.FailedPrecondition, st.Code())

	info := ErrorInfo(err)
	require.NotNil(t, info)
	assert.Equal(t, string(domain.KindInsufficientStock), info.Reason)
	assert.Equal(t, errorDomain, info.Domain)
	assert.Equal(t, "5", info.Metadata["available"])
	assert.Equal(t, "9", info.Metadata["requested"])
}

func TestAddItem_Errors(t *testing.T) {
	tests := []struct {
		name   string
		req    *CartItemRequest
		code   codes.Code
		reason domain.Kind
	}{
		{
			name:   "malformed user id",
			req:    &CartItemRequest{UserID: "1", ProductID: laptopID, Quantity: 1},
			code:   codes.InvalidArgument,
			reason: domain.KindInvalidInput,
		},
		{
			name:   "zero quantity",
			req:    &CartItemRequest{UserID: userID, ProductID: laptopID, Quantity: 0},
			code:   codes.InvalidArgument,
			reason: domain.KindInvalidInput,
		},
		{
			name:   "unknown product",
			req:    &CartItemRequest{UserID: userID, ProductID: missingID, Quantity: 1},
			code:   codes.NotFound,
			reason: domain.KindProductNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupServer(t)

			_, err := env.cart.AddItem(context.Background(), tt.req)

			assert.Equal(t, tt.code, status.Code(err))
			info := ErrorInfo(err)
			require.NotNil(t, info)
			assert.Equal(t, string(tt.reason), info.Reason)
		})
	}
}

func TestGetCart_NotFound(t *testing.T) {
	env := setupServer(t)

	_, err := env.cart.GetCart(context.Background(), &GetCartRequest{UserID: userID})

	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGetCart_FlagsProductGoneFromCatalog(t *testing.T) {
	env := setupServer(t)
	ctx := context.Background()

	_, err := env.cart.AddItem(ctx, &CartItemRequest{UserID: userID, ProductID: laptopID, Quantity: 1})
	require.NoError(t, err)
	env.catalog.DeleteProduct(laptopID)

	got, err := env.cart.GetCart(ctx, &GetCartRequest{UserID: userID})
	require.NoError(t, err)
	require.Len(t, got.Cart.Items, 1)
	assert.True(t, got.Cart.Items[0].Unavailable)
	assert.Nil(t, got.Cart.Items[0].Product)
}

func TestUpdateAndRemoveItem(t *testing.T) {
	env := setupServer(t)
	ctx := context.Background()

	_, err := env.cart.AddItem(ctx, &CartItemRequest{UserID: userID, ProductID: laptopID, Quantity: 1})
	require.NoError(t, err)

	updated, err := env.cart.UpdateItem(ctx, &CartItemRequest{UserID: userID, ProductID: laptopID, Quantity: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Cart.Items[0].Quantity)

	removed, err := env.cart.RemoveItem(ctx, &RemoveItemRequest{UserID: userID, ProductID: laptopID})
	require.NoError(t, err)
	assert.Empty(t, removed.Cart.Items)

	_, err = env.cart.RemoveItem(ctx, &RemoveItemRequest{UserID: userID, ProductID: laptopID})
	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.Equal(t, string(domain.KindItemNotFound), ErrorInfo(err).Reason)
}

func TestLoyalty_EarnRedeemBalance(t *testing.T) {
	env := setupServer(t)
	ctx := context.Background()

	earned, err := env.loyalty.Earn(ctx, &EarnRequest{UserID: userID, Points: 100, Description: "order 1", Reference: "evt-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(100), earned.Account.TotalPoints)

	redeemed, err := env.loyalty.Redeem(ctx, &RedeemRequest{UserID: userID, Points: 30, Description: "voucher"})
	require.NoError(t, err)
	assert.Equal(t, int64(70), redeemed.Account.TotalPoints)
	require.Len(t, redeemed.Account.PointsHistory, 2)
	assert.Equal(t, string(domain.TransactionRedeemed), redeemed.Account.PointsHistory[1].Type)

	balance, err := env.loyalty.GetBalance(ctx, &GetBalanceRequest{UserID: userID})
	require.NoError(t, err)
	assert.Equal(t, int64(70), balance.Account.TotalPoints)
}

func TestRedeem_InsufficientPointsCarriesBalance(t *testing.T) {
	env := setupServer(t)
	ctx := context.Background()

	_, err := env.loyalty.Earn(ctx, &EarnRequest{UserID: userID, Points: 40, Description: "order 1", Reference: "evt-1"})
	require.NoError(t, err)

	_, err = env.loyalty.Redeem(ctx, &RedeemRequest{UserID: userID, Points: 50, Description: "voucher"})

	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	info := ErrorInfo(err)
	require.NotNil(t, info)
	assert.Equal(t, string(domain.KindInsufficientPoints), info.Reason)
	assert.Equal(t, "40", info.Metadata["balance"])
}

func TestRedeem_UnknownAccount(t *testing.T) {
	env := setupServer(t)

	_, err := env.loyalty.Redeem(context.Background(), &RedeemRequest{UserID: userID, Points: 5, Description: "voucher"})

	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestHealth_ReportsServing(t *testing.T) {
	env := setupServer(t)

	resp, err := healthpb.NewHealthClient(env.conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: CartServiceName},
		googlegrpc.CallContentSubtype("proto"))
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestToStatus_InternalHidesDetail(t *testing.T) {
	err := toStatus(domain.Internal(assert.AnError, "load cart"))

	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Internal, st.Code())
	assert.Equal(t, "internal error", st.Message())
	assert.NotContains(t, st.Message(), assert.AnError.Error())
}

type unreachableCatalog struct {
	*catalog.MemoryCatalog
}

func (unreachableCatalog) GetProduct(context.Context, string) (*domain.ProductSnapshot, error) {
	return nil, assert.AnError
}

func TestToStatus_OpenBreakerIsUnavailable(t *testing.T) {
	products := catalog.NewBreakerCatalog(unreachableCatalog{catalog.NewMemoryCatalog()},
		catalog.BreakerSettings{MaxFailures: 1, OpenTimeout: time.Minute}, zap.NewNop())
	svc := service.NewCartService(repository.NewMemoryCartRepository(), cache.NopCache{}, products, zap.NewNop())
	ctx := context.Background()

	_, err := svc.AddItem(ctx, userID, laptopID, 1)
	assert.Equal(t, codes.Internal, status.Code(toStatus(err)))

	_, err = svc.AddItem(ctx, userID, laptopID, 1)
	st := status.Convert(toStatus(err))
	assert.Equal(t, codes.Unavailable, st.Code())
	assert.Equal(t, "catalog unavailable", st.Message())
}

func TestRecoverInterceptor_ConvertsPanic(t *testing.T) {
	interceptor := recoverInterceptor(zap.NewNop())
	info := &googlegrpc.UnaryServerInfo{FullMethod: "/" + CartServiceName + "/GetCart"}

	_, err := interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})

	assert.Equal(t, codes.Internal, status.Code(err))
}
