package repository

import (
	"context"

	"github.com/sakashimaa/go-grocery/internal/order/domain"
)

type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	// Update saves order only if the stored version still equals order.Version,
	// then bumps order.Version. A stale write fails with domain.ErrVersionConflict.
	Update(ctx context.Context, order *domain.Order) error
	ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error)
	List(ctx context.Context, filter domain.ListFilter) ([]domain.Order, error)
}
