package stock

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/commerce-service/internal/catalog"
	"github.com/fjod/go_cart/commerce-service/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	productID = "64b7f0c2a1b2c3d4e5f6c001"
	missingID = "64b7f0c2a1b2c3d4e5f6c0ff"
)

type brokenReader struct {
	catalog.Reader
}

func (brokenReader) GetProduct(context.Context, string) (*domain.ProductSnapshot, error) {
	return nil, errors.New("mongo: connection reset")
}

func TestCheckAvailability(t *testing.T) {
	mem := catalog.NewMemoryCatalog()
	mem.SetProduct(domain.ProductSnapshot{ID: productID, Name: "Laptop", Price: decimal.NewFromInt(1000), Stock: 5})
	v := NewValidator(mem)

	tests := []struct {
		name      string
		productID string
		qty       int
		status    Status
		available int
		wantErr   error
	}{
		{name: "enough stock", productID: productID, qty: 3, status: StatusAvailable, available: 5},
		{name: "exactly the stock", productID: productID, qty: 5, status: StatusAvailable, available: 5},
		{name: "short", productID: productID, qty: 6, status: StatusInsufficientStock, available: 5, wantErr: domain.ErrInsufficientStock},
		{name: "unknown product", productID: missingID, qty: 1, status: StatusProductNotFound, wantErr: domain.ErrProductNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.CheckAvailability(context.Background(), tt.productID, tt.qty)
			require.NoError(t, err)

			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.available, got.Available)
			assert.Equal(t, tt.status == StatusAvailable, got.OK())
			if tt.wantErr == nil {
				assert.NoError(t, got.Err())
			} else {
				assert.ErrorIs(t, got.Err(), tt.wantErr)
			}
		})
	}
}

func TestCheckAvailability_ReportsAvailableInError(t *testing.T) {
	mem := catalog.NewMemoryCatalog()
	mem.SetProduct(domain.ProductSnapshot{ID: productID, Stock: 2})

	got, err := NewValidator(mem).CheckAvailability(context.Background(), productID, 4)
	require.NoError(t, err)

	var insufficient *domain.InsufficientStockError
	require.True(t, errors.As(got.Err(), &insufficient))
	assert.Equal(t, 2, insufficient.Available)
	assert.Equal(t, 4, insufficient.Requested)
}

func TestCheckAvailability_IsAdvisory(t *testing.T) {
	mem := catalog.NewMemoryCatalog()
	mem.SetProduct(domain.ProductSnapshot{ID: productID, Stock: 1})
	v := NewValidator(mem)
	ctx := context.Background()

	// both checks pass against the single unit; only the decrement decides
	first, err := v.CheckAvailability(ctx, productID, 1)
	require.NoError(t, err)
	second, err := v.CheckAvailability(ctx, productID, 1)
	require.NoError(t, err)
	assert.True(t, first.OK())
	assert.True(t, second.OK())

	require.NoError(t, mem.DecrementStock(ctx, productID, 1))
	assert.ErrorIs(t, mem.DecrementStock(ctx, productID, 1), domain.ErrInsufficientStock)
}

func TestCheckAvailability_CatalogFailure(t *testing.T) {
	_, err := NewValidator(brokenReader{}).CheckAvailability(context.Background(), productID, 1)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
