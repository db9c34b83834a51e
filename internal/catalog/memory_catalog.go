package catalog

import (
	"context"
	"sync"

	"github.com/fjod/go_cart/commerce-service/internal/domain"
)

// MemoryCatalog implements Catalog with in-memory storage
type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[string]*domain.ProductSnapshot // productID -> snapshot
}

// NewMemoryCatalog creates an empty in-memory catalog
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		products: make(map[string]*domain.ProductSnapshot),
	}
}

// SetProduct inserts or replaces a product snapshot
func (s *MemoryCatalog) SetProduct(p domain.ProductSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := p
	cp.Images = append([]string(nil), p.Images...)
	s.products[p.ID] = &cp
}

// SetStock sets the stock level for an existing product
func (s *MemoryCatalog) SetStock(productID string, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.products[productID]; ok {
		p.Stock = stock
	}
}

// DeleteProduct removes a product, leaving cart lines that reference it stale
func (s *MemoryCatalog) DeleteProduct(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.products, productID)
}

func (s *MemoryCatalog) GetProduct(_ context.Context, productID string) (*domain.ProductSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryCatalog) GetProducts(_ context.Context, productIDs []string) (map[string]domain.ProductSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.ProductSnapshot, len(productIDs))
	for _, id := range productIDs {
		if p, ok := s.products[id]; ok {
			result[id] = *p
		}
	}
	return result, nil
}

// DecrementStock validates and subtracts under one lock, so concurrent
// callers can never drive stock below zero.
func (s *MemoryCatalog) DecrementStock(_ context.Context, productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if p.Stock < qty {
		return &domain.InsufficientStockError{ProductID: productID, Requested: qty, Available: p.Stock}
	}
	p.Stock -= qty
	return nil
}
