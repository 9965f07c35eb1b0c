package repository

import (
	"context"

	"github.com/sakashimaa/go-grocery/internal/inventory/domain"
)

// InventoryRepository mutates stock atomically per product.
type InventoryRepository interface {
	Upsert(ctx context.Context, entry *domain.Entry) (domain.Change, error)
	GetByID(ctx context.Context, productID string) (*domain.Entry, error)
	// Decrement fails with domain.ErrOutOfStock without touching stock when quantity exceeds it.
	Decrement(ctx context.Context, productID string, quantity int) (domain.Change, error)
	// Adjust adds delta and clamps the result at zero.
	Adjust(ctx context.Context, productID string, delta int) (domain.Change, error)
}
