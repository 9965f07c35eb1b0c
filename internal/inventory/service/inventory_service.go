package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sakashimaa/go-grocery/internal/inventory/domain"
	"github.com/sakashimaa/go-grocery/internal/inventory/repository"
	"github.com/sakashimaa/go-grocery/internal/metrics"
	generalDomain "github.com/sakashimaa/go-grocery/pkg/domain"
	"github.com/sakashimaa/go-grocery/pkg/mylogger"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type EventPublisher interface {
	Publish(ctx context.Context, event generalDomain.Event)
}

type InventoryService struct {
	repo      repository.InventoryRepository
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	tracer    trace.Tracer
}

func NewInventoryService(
	repo repository.InventoryRepository,
	publisher EventPublisher,
	m *metrics.Metrics,
	logger *zap.Logger,
) *InventoryService {
	return &InventoryService{
		repo:      repo,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("inventory_service"),
	}
}

// Reserve atomically takes quantity units and returns the remaining stock.
func (s *InventoryService) Reserve(ctx context.Context, productID string, quantity int) (int, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.Reserve")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", productID),
		attribute.Int("quantity", quantity),
	)

	if quantity < 1 {
		return 0, domain.ErrInvalidQuantity
	}

	change, err := s.repo.Decrement(ctx, productID, quantity)
	if err != nil {
		span.RecordError(err)

		if errors.Is(err, domain.ErrOutOfStock) || errors.Is(err, domain.ErrProductNotFound) {
			mylogger.Info(
				ctx,
				s.logger,
				"Reservation rejected",
				zap.String("product_id", productID),
				zap.Int("quantity", quantity),
				zap.Error(err),
			)

			return 0, err
		}

		return 0, fmt.Errorf("reserve %s: %w", productID, err)
	}

	s.alertIfCrossed(ctx, change)

	return change.Entry.Stock, nil
}

// Restock applies a signed correction; the result never drops below zero.
func (s *InventoryService) Restock(ctx context.Context, productID string, delta int) (int, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.Restock")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", productID),
		attribute.Int("delta", delta),
	)

	if delta < -domain.MaxStockDelta || delta > domain.MaxStockDelta {
		return 0, fmt.Errorf("%w: delta must be within ±%d", domain.ErrInvalidQuantity, domain.MaxStockDelta)
	}

	change, err := s.repo.Adjust(ctx, productID, delta)
	if err != nil {
		span.RecordError(err)

		if errors.Is(err, domain.ErrProductNotFound) || errors.Is(err, domain.ErrStockOverflow) {
			return 0, err
		}

		return 0, fmt.Errorf("restock %s: %w", productID, err)
	}

	mylogger.Debug(
		ctx,
		s.logger,
		"Stock adjusted",
		zap.String("product_id", productID),
		zap.Int("before", change.Before),
		zap.Int("after", change.Entry.Stock),
	)

	s.alertIfCrossed(ctx, change)

	return change.Entry.Stock, nil
}

func (s *InventoryService) CheckLow(ctx context.Context, productID string) (bool, error) {
	entry, err := s.repo.GetByID(ctx, productID)
	if err != nil {
		return false, err
	}

	return domain.IsLow(entry.Stock), nil
}

func (s *InventoryService) Get(ctx context.Context, productID string) (*domain.Entry, error) {
	return s.repo.GetByID(ctx, productID)
}

type UpsertInput struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	Stock     int
}

// Upsert creates or replaces an entry. Creating an entry at or below the threshold,
// or lowering an existing one across it, raises an alert.
func (s *InventoryService) Upsert(ctx context.Context, in UpsertInput) (*domain.Entry, error) {
	ctx, span := s.tracer.Start(ctx, "InventoryService.Upsert")
	defer span.End()

	span.SetAttributes(attribute.String("product_id", in.ProductID))

	if strings.TrimSpace(in.ProductID) == "" || in.Stock < 0 || in.Stock > domain.MaxStock || in.Price.IsNegative() {
		return nil, fmt.Errorf("%w: product id, non-negative stock and price are required", domain.ErrInvalidEntry)
	}

	change, err := s.repo.Upsert(ctx, &domain.Entry{
		ProductID: in.ProductID,
		Name:      in.Name,
		Price:     in.Price,
		Stock:     in.Stock,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.alertIfCrossed(ctx, change)

	return &change.Entry, nil
}

func (s *InventoryService) alertIfCrossed(ctx context.Context, change domain.Change) {
	if !change.CrossedLow() {
		return
	}

	mylogger.Warn(
		ctx,
		s.logger,
		"Stock fell to low threshold",
		zap.String("product_id", change.Entry.ProductID),
		zap.Int("stock", change.Entry.Stock),
	)

	s.metrics.StockAlert()
	s.publisher.Publish(ctx, &generalDomain.StockAlertEvent{
		ProductID: change.Entry.ProductID,
		Name:      change.Entry.Name,
		Stock:     change.Entry.Stock,
		Threshold: domain.LowStockThreshold,
		RaisedAt:  time.Now().UTC(),
	})
}
