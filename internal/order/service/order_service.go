package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	cartDomain "github.com/sakashimaa/go-grocery/internal/cart/domain"
	inventoryDomain "github.com/sakashimaa/go-grocery/internal/inventory/domain"
	"github.com/sakashimaa/go-grocery/internal/metrics"
	"github.com/sakashimaa/go-grocery/internal/order/domain"
	"github.com/sakashimaa/go-grocery/internal/order/repository"
	"github.com/sakashimaa/go-grocery/pkg/auth"
	generalDomain "github.com/sakashimaa/go-grocery/pkg/domain"
	"github.com/sakashimaa/go-grocery/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const maxUpdateAttempts = 3

type StockLedger interface {
	Reserve(ctx context.Context, productID string, quantity int) (int, error)
	Restock(ctx context.Context, productID string, delta int) (int, error)
}

// CartStore hands a cart to exactly one checkout. Take must read and remove the
// cart atomically; Replace puts it back when the checkout fails.
type CartStore interface {
	Take(ctx context.Context, customerID string) (*cartDomain.Cart, error)
	Replace(ctx context.Context, cart *cartDomain.Cart) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event generalDomain.Event)
}

type OrderService struct {
	repo           repository.OrderRepository
	carts          CartStore
	stock          StockLedger
	publisher      EventPublisher
	metrics        *metrics.Metrics
	logger         *zap.Logger
	tracer         trace.Tracer
	deliveryWindow time.Duration
	now            func() time.Time
}

func NewOrderService(
	repo repository.OrderRepository,
	carts CartStore,
	stock StockLedger,
	publisher EventPublisher,
	m *metrics.Metrics,
	logger *zap.Logger,
	deliveryWindow time.Duration,
) *OrderService {
	return &OrderService{
		repo:           repo,
		carts:          carts,
		stock:          stock,
		publisher:      publisher,
		metrics:        m,
		logger:         logger,
		tracer:         otel.Tracer("order_service"),
		deliveryWindow: deliveryWindow,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

type CheckoutInput struct {
	CustomerID    string
	Shipping      domain.Address
	PaymentMethod domain.PaymentMethod
}

// Checkout claims the customer's cart and turns it into an order. A concurrent
// checkout for the same customer finds the cart already taken and fails with
// ErrEmptyCart. When order creation fails the cart is put back.
func (s *OrderService) Checkout(ctx context.Context, in CheckoutInput) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.Checkout")
	defer span.End()

	span.SetAttributes(attribute.String("customer_id", in.CustomerID))

	cart, err := s.carts.Take(ctx, in.CustomerID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("resolve cart: %w", err)
	}

	items := make([]domain.LineItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, domain.LineItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}

	order, err := s.CreateFromCart(ctx, in.CustomerID, items, in.Shipping, in.PaymentMethod)
	if err != nil {
		if !cart.IsEmpty() {
			s.restoreCart(ctx, cart)
		}
		return nil, err
	}

	return order, nil
}

func (s *OrderService) restoreCart(ctx context.Context, cart *cartDomain.Cart) {
	if err := s.carts.Replace(context.WithoutCancel(ctx), cart); err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to restore cart after failed checkout",
			zap.String("customer_id", cart.CustomerID),
			zap.Error(err),
		)
	}
}

// CreateFromCart reserves every line item or none of them. Reservations taken before a
// failure are restocked before the error is returned.
func (s *OrderService) CreateFromCart(
	ctx context.Context,
	customerID string,
	items []domain.LineItem,
	shipping domain.Address,
	method domain.PaymentMethod,
) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CreateFromCart")
	defer span.End()

	span.SetAttributes(
		attribute.String("customer_id", customerID),
		attribute.Int("items", len(items)),
	)

	if len(items) == 0 {
		s.metrics.CheckoutFailed("empty_cart")
		return nil, domain.ErrEmptyCart
	}

	if err := validateCheckout(customerID, items, method); err != nil {
		s.metrics.CheckoutFailed("invalid_input")
		return nil, err
	}

	reserved := make([]domain.LineItem, 0, len(items))
	for _, item := range items {
		if _, err := s.stock.Reserve(ctx, item.ProductID, item.Quantity); err != nil {
			span.RecordError(err)
			s.compensate(ctx, reserved)
			s.metrics.CheckoutFailed("insufficient_stock")

			if errors.Is(err, inventoryDomain.ErrOutOfStock) || errors.Is(err, inventoryDomain.ErrProductNotFound) {
				return nil, &domain.InsufficientStockError{
					ProductID: item.ProductID,
					Name:      item.Name,
					Requested: item.Quantity,
					Cause:     err,
				}
			}

			return nil, fmt.Errorf("reserve %s: %w", item.ProductID, err)
		}

		reserved = append(reserved, item)
	}

	now := s.now()
	order := &domain.Order{
		ID:              uuid.NewString(),
		CustomerID:      customerID,
		Items:           items,
		Total:           domain.CalculateTotal(items),
		ShippingAddress: shipping,
		Payment: domain.PaymentSummary{
			Method: method,
			Status: domain.PaymentStatePending,
		},
		Status:    domain.OrderStatusPlaced,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, order); err != nil {
		span.RecordError(err)
		s.compensate(ctx, reserved)
		s.metrics.CheckoutFailed("persistence")

		mylogger.Error(ctx, s.logger, "Failed to create order", zap.String("customer_id", customerID), zap.Error(err))

		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	span.SetAttributes(attribute.String("order_id", order.ID))
	s.metrics.OrderCreated()

	mylogger.Info(
		ctx,
		s.logger,
		"Order placed",
		zap.String("order_id", order.ID),
		zap.String("customer_id", customerID),
		zap.String("total", order.Total.StringFixed(2)),
	)

	s.publisher.Publish(ctx, &generalDomain.OrderPlacedEvent{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Status:     string(order.Status),
		Total:      order.Total,
		Items:      toEventItems(order.Items),
		PlacedAt:   order.CreatedAt,
	})

	return order, nil
}

// compensate returns reserved stock in reverse order of reservation.
func (s *OrderService) compensate(ctx context.Context, reserved []domain.LineItem) {
	cleanupCtx := context.WithoutCancel(ctx)

	for i := len(reserved) - 1; i >= 0; i-- {
		item := reserved[i]
		if _, err := s.stock.Restock(cleanupCtx, item.ProductID, item.Quantity); err != nil {
			mylogger.Error(
				cleanupCtx,
				s.logger,
				"Failed to return reserved stock",
				zap.String("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err),
			)
		}
	}
}

func (s *OrderService) TransitionStatus(ctx context.Context, orderID string, next domain.OrderStatus, actingUserID string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.TransitionStatus")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID),
		attribute.String("status", string(next)),
	)

	order, prev, err := s.mutate(ctx, orderID, func(o *domain.Order) error {
		if !o.Status.CanTransitionTo(next) {
			return &domain.TransitionError{From: o.Status, To: next}
		}

		o.Status = next
		if next == domain.OrderStatusOutForDelivery {
			eta := s.now().Add(s.deliveryWindow)
			o.DeliveryAgentID = actingUserID
			o.EstimatedDelivery = &eta
		}

		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if next == domain.OrderStatusCancelled {
		s.compensate(ctx, order.Items)
	}

	s.statusChanged(ctx, order, prev)

	return order, nil
}

// MarkPaid records a completed charge and moves a placed order to processing.
func (s *OrderService) MarkPaid(ctx context.Context, orderID, transactionID string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.MarkPaid")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", orderID))

	order, prev, err := s.mutate(ctx, orderID, func(o *domain.Order) error {
		if !o.Status.CanTransitionTo(domain.OrderStatusProcessing) {
			return &domain.TransitionError{From: o.Status, To: domain.OrderStatusProcessing}
		}

		o.Status = domain.OrderStatusProcessing
		o.Payment.TransactionID = transactionID
		o.Payment.Status = domain.PaymentStateCompleted

		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.statusChanged(ctx, order, prev)

	return order, nil
}

// CancelDueToRefund cancels the order regardless of the transition graph.
func (s *OrderService) CancelDueToRefund(ctx context.Context, orderID string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CancelDueToRefund")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", orderID))

	order, prev, err := s.mutate(ctx, orderID, func(o *domain.Order) error {
		o.Status = domain.OrderStatusCancelled
		o.Payment.Status = domain.PaymentStateRefunded
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// Delivered goods are not back on the shelf, and a second cancel must not restock twice.
	if prev != domain.OrderStatusCancelled && prev != domain.OrderStatusDelivered {
		s.compensate(ctx, order.Items)
	}

	if prev != domain.OrderStatusCancelled {
		s.statusChanged(ctx, order, prev)
	}

	return order, nil
}

func (s *OrderService) UpdateLocation(ctx context.Context, orderID, location, actingUserID string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.UpdateLocation")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", orderID))

	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("%w: location is required", domain.ErrInvalidInput)
	}

	order, _, err := s.mutate(ctx, orderID, func(o *domain.Order) error {
		if o.DeliveryAgentID == "" || o.DeliveryAgentID != actingUserID {
			return domain.ErrForbidden
		}

		o.CurrentLocation = location
		return nil
	})
	if err != nil {
		span.RecordError(err)

		if errors.Is(err, domain.ErrForbidden) {
			mylogger.Warn(
				ctx,
				s.logger,
				"Location update from unassigned user",
				zap.String("order_id", orderID),
				zap.String("user_id", actingUserID),
			)
		}

		return nil, err
	}

	s.publisher.Publish(ctx, &generalDomain.DeliveryUpdatedEvent{
		OrderID:         order.ID,
		CustomerID:      order.CustomerID,
		DeliveryAgentID: order.DeliveryAgentID,
		Location:        order.CurrentLocation,
		UpdatedAt:       order.UpdatedAt,
	})

	return order, nil
}

// Get returns the order if viewer may see it: its customer, its delivery agent, or any admin.
func (s *OrderService) Get(ctx context.Context, orderID string, viewer auth.Identity) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if viewer.Role != auth.RoleAdmin && !order.IsParticipant(viewer.UserID) {
		return nil, domain.ErrForbidden
	}

	return order, nil
}

func (s *OrderService) ListMine(ctx context.Context, customerID string) ([]domain.Order, error) {
	return s.repo.ListByCustomer(ctx, customerID)
}

func (s *OrderService) List(ctx context.Context, filter domain.ListFilter) ([]domain.Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, filter.Status)
	}

	return s.repo.List(ctx, filter)
}

// GetByID is the unchecked lookup used by collaborating services.
func (s *OrderService) GetByID(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.repo.GetByID(ctx, orderID)
}

// mutate applies fn to a fresh copy of the order and retries on concurrent modification.
func (s *OrderService) mutate(ctx context.Context, orderID string, fn func(o *domain.Order) error) (*domain.Order, domain.OrderStatus, error) {
	var lastErr error

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		order, err := s.repo.GetByID(ctx, orderID)
		if err != nil {
			return nil, "", err
		}

		prev := order.Status
		if err := fn(order); err != nil {
			return nil, prev, err
		}
		order.UpdatedAt = s.now()

		err = s.repo.Update(ctx, order)
		if err == nil {
			return order, prev, nil
		}

		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, prev, fmt.Errorf("save order %s: %w", orderID, err)
		}

		lastErr = err
		mylogger.Debug(ctx, s.logger, "Order version conflict, retrying", zap.String("order_id", orderID), zap.Int("attempt", attempt+1))
	}

	return nil, "", lastErr
}

func (s *OrderService) statusChanged(ctx context.Context, order *domain.Order, prev domain.OrderStatus) {
	s.metrics.OrderStatusChanged(string(order.Status))

	mylogger.Info(
		ctx,
		s.logger,
		"Order status changed",
		zap.String("order_id", order.ID),
		zap.String("from", string(prev)),
		zap.String("to", string(order.Status)),
	)

	event := &generalDomain.OrderStatusChangedEvent{
		OrderID:           order.ID,
		CustomerID:        order.CustomerID,
		DeliveryAgentID:   order.DeliveryAgentID,
		PreviousStatus:    string(prev),
		Status:            string(order.Status),
		EstimatedDelivery: order.EstimatedDelivery,
		ChangedAt:         order.UpdatedAt,
	}
	if order.Status == domain.OrderStatusCancelled {
		event.Items = toEventItems(order.Items)
	}

	s.publisher.Publish(ctx, event)
}

func validateCheckout(customerID string, items []domain.LineItem, method domain.PaymentMethod) error {
	if customerID == "" {
		return fmt.Errorf("%w: customer is required", domain.ErrInvalidInput)
	}
	if method != "" && !method.Valid() {
		return fmt.Errorf("%w: unsupported payment method %q", domain.ErrInvalidInput, method)
	}

	for _, item := range items {
		if item.ProductID == "" || item.Quantity < 1 || item.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: line item %q needs a product, a positive quantity and a price", domain.ErrInvalidInput, item.ProductID)
		}
	}

	return nil
}

func toEventItems(items []domain.LineItem) []generalDomain.OrderItem {
	out := make([]generalDomain.OrderItem, len(items))
	for i, item := range items {
		out[i] = generalDomain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		}
	}
	return out
}
