package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakashimaa/go-grocery/internal/cart/domain"
	"github.com/sakashimaa/go-grocery/internal/cart/repository"
	inventoryDomain "github.com/sakashimaa/go-grocery/internal/inventory/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var ErrInvalidItem = errors.New("invalid cart item")

type Catalog interface {
	Get(ctx context.Context, productID string) (*inventoryDomain.Entry, error)
}

type CartService struct {
	repo    repository.CartRepository
	catalog Catalog
	logger  *zap.Logger
	tracer  trace.Tracer
}

func NewCartService(repo repository.CartRepository, catalog Catalog, logger *zap.Logger) *CartService {
	return &CartService{
		repo:    repo,
		catalog: catalog,
		logger:  logger,
		tracer:  otel.Tracer("cart_service"),
	}
}

type ItemInput struct {
	ProductID string
	Quantity  int
}

func (s *CartService) Get(ctx context.Context, customerID string) (*domain.Cart, error) {
	return s.repo.Get(ctx, customerID)
}

// Replace stores a new cart snapshot. Names and unit prices are taken from the
// ledger at this moment; repeated products are merged.
func (s *CartService) Replace(ctx context.Context, customerID string, inputs []ItemInput) (*domain.Cart, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.Replace")
	defer span.End()

	span.SetAttributes(
		attribute.String("customer_id", customerID),
		attribute.Int("items", len(inputs)),
	)

	cart := &domain.Cart{CustomerID: customerID, Items: make([]domain.Item, 0, len(inputs))}
	index := make(map[string]int, len(inputs))

	for _, in := range inputs {
		if in.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity for %s must be at least 1", ErrInvalidItem, in.ProductID)
		}

		if i, ok := index[in.ProductID]; ok {
			cart.Items[i].Quantity += in.Quantity
			continue
		}

		entry, err := s.catalog.Get(ctx, in.ProductID)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}

		index[in.ProductID] = len(cart.Items)
		cart.Items = append(cart.Items, domain.Item{
			ProductID: entry.ProductID,
			Name:      entry.Name,
			UnitPrice: entry.Price,
			Quantity:  in.Quantity,
		})
	}

	if err := s.repo.Replace(ctx, cart); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("save cart: %w", err)
	}

	s.logger.Debug("Cart replaced", zap.String("customer_id", customerID), zap.Int("items", len(cart.Items)))
	return s.repo.Get(ctx, customerID)
}

func (s *CartService) Clear(ctx context.Context, customerID string) error {
	return s.repo.Clear(ctx, customerID)
}
