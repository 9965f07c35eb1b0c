package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/sakashimaa/go-grocery/internal/cart/domain"
)

type MemoryRepository struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{carts: make(map[string]domain.Cart)}
}

func (r *MemoryRepository) Get(_ context.Context, customerID string) (*domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.carts[customerID]
	if !ok {
		return &domain.Cart{CustomerID: customerID, Items: []domain.Item{}}, nil
	}

	cart.Items = slices.Clone(cart.Items)
	return &cart, nil
}

func (r *MemoryRepository) Replace(_ context.Context, cart *domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *cart
	stored.Items = slices.Clone(cart.Items)
	stored.UpdatedAt = time.Now().UTC()
	r.carts[cart.CustomerID] = stored

	return nil
}

func (r *MemoryRepository) Clear(_ context.Context, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.carts, customerID)
	return nil
}

func (r *MemoryRepository) Take(_ context.Context, customerID string) (*domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cart, ok := r.carts[customerID]
	if !ok {
		return &domain.Cart{CustomerID: customerID, Items: []domain.Item{}}, nil
	}
	delete(r.carts, customerID)

	return &cart, nil
}
