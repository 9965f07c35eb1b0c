package repository

import (
	"context"

	"github.com/sakashimaa/go-grocery/internal/payment/domain"
)

type PaymentRepository interface {
	// Create fails with domain.ErrDuplicatePayment when the order already has a payment.
	Create(ctx context.Context, payment *domain.Payment) error
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
	GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error)
	Update(ctx context.Context, payment *domain.Payment) error
	ListByPayer(ctx context.Context, payerID string) ([]domain.Payment, error)
}
