package repository

import (
	"context"

	"github.com/sakashimaa/go-grocery/internal/cart/domain"
)

type CartRepository interface {
	Get(ctx context.Context, customerID string) (*domain.Cart, error)
	Replace(ctx context.Context, cart *domain.Cart) error
	Clear(ctx context.Context, customerID string) error
	// Take removes the cart and returns what it held, so only one checkout can claim it.
	Take(ctx context.Context, customerID string) (*domain.Cart, error)
}
