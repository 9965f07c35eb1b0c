package repository

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/sakashimaa/go-grocery/internal/payment/domain"
)

type MemoryRepository struct {
	mu       sync.RWMutex
	payments map[string]domain.Payment
	byOrder  map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		payments: make(map[string]domain.Payment),
		byOrder:  make(map[string]string),
	}
}

func clone(p domain.Payment) domain.Payment {
	p.GatewayResponse = maps.Clone(p.GatewayResponse)
	if p.Refund != nil {
		refund := *p.Refund
		p.Refund = &refund
	}
	return p
}

func (r *MemoryRepository) Create(_ context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byOrder[payment.OrderID]; exists {
		return domain.ErrDuplicatePayment
	}

	r.payments[payment.ID] = clone(*payment)
	r.byOrder[payment.OrderID] = payment.ID

	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}

	c := clone(p)
	return &c, nil
}

func (r *MemoryRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	r.mu.RLock()
	id, ok := r.byOrder[orderID]
	r.mu.RUnlock()

	if !ok {
		return nil, domain.ErrPaymentNotFound
	}

	return r.GetByID(ctx, id)
}

func (r *MemoryRepository) Update(_ context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.payments[payment.ID]
	if !ok {
		return domain.ErrPaymentNotFound
	}

	if stored.Version != payment.Version {
		return domain.ErrVersionConflict
	}

	payment.Version++
	r.payments[payment.ID] = clone(*payment)

	return nil
}

func (r *MemoryRepository) ListByPayer(_ context.Context, payerID string) ([]domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Payment
	for _, p := range r.payments {
		if p.PayerID == payerID {
			result = append(result, clone(p))
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}
