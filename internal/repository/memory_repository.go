package repository

import (
	"context"
	"sync"

	"github.com/fjod/go_cart/commerce-service/internal/domain"
	"github.com/google/uuid"
)

// MemoryCartRepository implements CartRepository with in-memory storage
type MemoryCartRepository struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart // userID -> cart
}

func NewMemoryCartRepository() *MemoryCartRepository {
	return &MemoryCartRepository{
		carts: make(map[string]*domain.Cart),
	}
}

func (m *MemoryCartRepository) GetCart(_ context.Context, userID string) (*domain.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cart, ok := m.carts[userID]
	if !ok {
		return nil, ErrCartNotFound
	}
	return cart.Clone(), nil
}

func (m *MemoryCartRepository) SaveCart(_ context.Context, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, exists := m.carts[cart.UserID]
	if cart.ID == "" {
		if exists {
			return ErrVersionConflict
		}
		cart.ID = uuid.NewString()
		cart.Version = 0
		m.carts[cart.UserID] = cart.Clone()
		return nil
	}

	if !exists || stored.Version != cart.Version {
		return ErrVersionConflict
	}
	cart.Version++
	m.carts[cart.UserID] = cart.Clone()
	return nil
}

// MemoryLoyaltyRepository implements LoyaltyRepository with in-memory storage
type MemoryLoyaltyRepository struct {
	mu       sync.RWMutex
	accounts map[string]*domain.LoyaltyAccount // userID -> account
}

func NewMemoryLoyaltyRepository() *MemoryLoyaltyRepository {
	return &MemoryLoyaltyRepository{
		accounts: make(map[string]*domain.LoyaltyAccount),
	}
}

func (m *MemoryLoyaltyRepository) GetAccount(_ context.Context, userID string) (*domain.LoyaltyAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.accounts[userID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return account.Clone(), nil
}

func (m *MemoryLoyaltyRepository) SaveAccount(_ context.Context, account *domain.LoyaltyAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, exists := m.accounts[account.UserID]
	if account.ID == "" {
		if exists {
			return ErrVersionConflict
		}
		account.ID = uuid.NewString()
		account.Version = 0
	} else {
		if !exists || stored.Version != account.Version {
			return ErrVersionConflict
		}
		account.Version++
	}

	account.MarkCommitted()
	m.accounts[account.UserID] = account.Clone()
	return nil
}
