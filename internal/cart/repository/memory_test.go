package repository

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/sakashimaa/go-grocery/internal/cart/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestMemoryRepository_TakeHandsCartToOneCaller(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	require.NoError(t, repo.Replace(ctx, &domain.Cart{
		CustomerID: "customer-1",
		Items:      []domain.Item{{ProductID: "milk", Name: "Milk", UnitPrice: decimal.NewFromInt(3), Quantity: 2}},
	}))

	var claimed atomic.Int64
	var g errgroup.Group
	for range 16 {
		g.Go(func() error {
			cart, err := repo.Take(ctx, "customer-1")
			if err != nil {
				return err
			}
			if !cart.IsEmpty() {
				claimed.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.EqualValues(t, 1, claimed.Load())

	cart, err := repo.Get(ctx, "customer-1")
	require.NoError(t, err)
	require.True(t, cart.IsEmpty())
}
