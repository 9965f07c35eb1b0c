package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sakashimaa/go-grocery/internal/metrics"
	"github.com/sakashimaa/go-grocery/internal/notification/domain"
	"github.com/sakashimaa/go-grocery/internal/notification/repository"
	"github.com/sakashimaa/go-grocery/pkg/auth"
	generalDomain "github.com/sakashimaa/go-grocery/pkg/domain"
	"github.com/sakashimaa/go-grocery/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Events pushed to connected clients.
const (
	PushNewNotification      = "newNotification"
	PushOrderStatusUpdate    = "orderStatusUpdate"
	PushAssignedOrderUpdate  = "assignedOrderUpdate"
	PushDeliveryLocation     = "deliveryLocationUpdate"
	PushNotificationRead     = "notificationRead"
	PushNotificationsCleared = "notificationsCleared"
)

const (
	titleOrderUpdate    = "Order Update"
	titlePaymentUpdate  = "Payment Update"
	titleDeliveryUpdate = "Delivery Update"
	titleLowStock       = "Low Stock Alert"
)

var orderMessages = map[string]string{
	"placed":           "Your order has been successfully placed",
	"processing":       "Your order is being processed",
	"out_for_delivery": "Your order is out for delivery",
	"delivered":        "Your order has been delivered",
	"cancelled":        "Your order has been cancelled",
}

var paymentMessages = map[string]string{
	"completed": "Payment successful",
	"failed":    "Payment failed",
	"refunded":  "Payment has been refunded",
}

// Pusher delivers a named event to live connections. Delivery is best-effort.
type Pusher interface {
	PushToUser(ctx context.Context, userID, event string, data any)
	PushToRole(ctx context.Context, role auth.Role, event string, data any)
}

type NotificationService struct {
	store   repository.FeedStore
	pusher  Pusher
	ids     *domain.IDGenerator
	metrics *metrics.Metrics
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

func NewNotificationService(
	store repository.FeedStore,
	pusher Pusher,
	m *metrics.Metrics,
	logger *zap.Logger,
) *NotificationService {
	return &NotificationService{
		store:   store,
		pusher:  pusher,
		ids:     domain.NewIDGenerator(),
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("notification_service"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type orderStatusPush struct {
	OrderID           string     `json:"order_id"`
	Status            string     `json:"status"`
	PreviousStatus    string     `json:"previous_status,omitempty"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
}

type locationPush struct {
	OrderID  string    `json:"order_id"`
	Location string    `json:"location"`
	At       time.Time `json:"updated_at"`
}

// Handle turns a domain event into stored notifications and live pushes.
// Events with no template are ignored.
func (s *NotificationService) Handle(ctx context.Context, event generalDomain.Event) error {
	ctx, span := s.tracer.Start(ctx, "NotificationService.Handle")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.name", event.EventName()),
		attribute.String("event.aggregate_id", event.AggregateID()),
	)

	var err error
	switch e := event.(type) {
	case *generalDomain.OrderPlacedEvent:
		err = s.orderStatus(ctx, e.OrderID, e.CustomerID, "", "", e.Status, nil)
	case *generalDomain.OrderStatusChangedEvent:
		err = s.orderStatus(ctx, e.OrderID, e.CustomerID, e.DeliveryAgentID, e.PreviousStatus, e.Status, e.EstimatedDelivery)
	case *generalDomain.DeliveryUpdatedEvent:
		err = s.deliveryUpdated(ctx, e)
	case *generalDomain.StockAlertEvent:
		_, err = s.Send(ctx, domain.Role(auth.RoleAdmin.Channel()), domain.CategoryStockAlert,
			titleLowStock, fmt.Sprintf("%s is running low on stock", e.Name),
			map[string]any{"product_id": e.ProductID, "stock": e.Stock, "threshold": e.Threshold})
	case *generalDomain.PaymentStatusChangedEvent:
		msg, ok := paymentMessages[e.Status]
		if !ok {
			return nil
		}
		_, err = s.Send(ctx, domain.User(e.PayerID), domain.CategoryPaymentStatus, titlePaymentUpdate, msg,
			map[string]any{"payment_id": e.PaymentID, "order_id": e.OrderID, "status": e.Status, "amount": e.Amount.StringFixed(2)})
	default:
		mylogger.Debug(ctx, s.logger, "No notification template for event", zap.String("event", event.EventName()))
		return nil
	}

	if err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (s *NotificationService) orderStatus(
	ctx context.Context,
	orderID, customerID, agentID, previous, status string,
	eta *time.Time,
) error {
	raw := orderStatusPush{OrderID: orderID, Status: status, PreviousStatus: previous, EstimatedDelivery: eta}
	s.pusher.PushToUser(ctx, customerID, PushOrderStatusUpdate, raw)
	s.pusher.PushToRole(ctx, auth.RoleAdmin, PushOrderStatusUpdate, raw)
	if agentID != "" {
		s.pusher.PushToUser(ctx, agentID, PushAssignedOrderUpdate, raw)
	}

	payload := map[string]any{"order_id": orderID, "status": status}
	var errs []error

	if msg, ok := orderMessages[status]; ok {
		if _, err := s.Send(ctx, domain.User(customerID), domain.CategoryOrderStatus, titleOrderUpdate, msg, payload); err != nil {
			errs = append(errs, err)
		}
	}

	adminMsg := fmt.Sprintf("Order %s status changed to %s", orderID, status)
	if _, err := s.Send(ctx, domain.Role(auth.RoleAdmin.Channel()), domain.CategoryOrderStatus, titleOrderUpdate, adminMsg, payload); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (s *NotificationService) deliveryUpdated(ctx context.Context, e *generalDomain.DeliveryUpdatedEvent) error {
	s.pusher.PushToUser(ctx, e.CustomerID, PushDeliveryLocation, locationPush{
		OrderID:  e.OrderID,
		Location: e.Location,
		At:       e.UpdatedAt,
	})

	_, err := s.Send(ctx, domain.User(e.CustomerID), domain.CategoryDeliveryUpdate, titleDeliveryUpdate,
		"Your delivery person is on the way",
		map[string]any{"order_id": e.OrderID, "location": e.Location})
	return err
}

// Send stores a notification in the recipient's feed and pushes it live.
func (s *NotificationService) Send(
	ctx context.Context,
	to domain.Recipient,
	category domain.Category,
	title, message string,
	payload map[string]any,
) (*domain.Notification, error) {
	if !to.Valid() {
		return nil, domain.ErrInvalidRecipient
	}

	n := domain.Notification{
		ID:        s.ids.Next(),
		Role:      to.Role,
		Category:  category,
		Title:     title,
		Message:   message,
		Payload:   payload,
		CreatedAt: s.now(),
	}
	if !to.IsRole() {
		userID := to.UserID
		n.UserID = &userID
	}

	if err := s.store.Append(ctx, to.Key(), n); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to store notification",
			zap.Error(err),
			zap.String("recipient", to.Key()),
			zap.String("category", string(category)),
		)
		return nil, fmt.Errorf("store notification: %w", err)
	}
	s.metrics.NotificationStored(string(category))

	s.push(ctx, to, PushNewNotification, n)
	return &n, nil
}

func (s *NotificationService) push(ctx context.Context, to domain.Recipient, event string, data any) {
	if to.IsRole() {
		s.pusher.PushToRole(ctx, roleFromChannel(to.Role), event, data)
		return
	}
	s.pusher.PushToUser(ctx, to.UserID, event, data)
}

func roleFromChannel(channel string) auth.Role {
	for _, r := range []auth.Role{auth.RoleAdmin, auth.RoleDelivery} {
		if r.Channel() == channel {
			return r
		}
	}
	return ""
}

func (s *NotificationService) ListFeed(ctx context.Context, to domain.Recipient) ([]domain.Notification, error) {
	ctx, span := s.tracer.Start(ctx, "NotificationService.ListFeed")
	defer span.End()

	if !to.Valid() {
		return nil, domain.ErrInvalidRecipient
	}

	items, err := s.store.List(ctx, to.Key())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list feed: %w", err)
	}
	return items, nil
}

// MarkRead is idempotent; unknown ids are ignored.
func (s *NotificationService) MarkRead(ctx context.Context, to domain.Recipient, id int64) error {
	ctx, span := s.tracer.Start(ctx, "NotificationService.MarkRead")
	defer span.End()
	span.SetAttributes(attribute.Int64("notification.id", id))

	if !to.Valid() {
		return domain.ErrInvalidRecipient
	}

	found, err := s.store.MarkRead(ctx, to.Key(), id)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("mark read: %w", err)
	}
	if found {
		s.push(ctx, to, PushNotificationRead, map[string]any{"id": id})
	}
	return nil
}

func (s *NotificationService) ClearFeed(ctx context.Context, to domain.Recipient) error {
	ctx, span := s.tracer.Start(ctx, "NotificationService.ClearFeed")
	defer span.End()

	if !to.Valid() {
		return domain.ErrInvalidRecipient
	}

	if err := s.store.Clear(ctx, to.Key()); err != nil {
		span.RecordError(err)
		return fmt.Errorf("clear feed: %w", err)
	}
	s.push(ctx, to, PushNotificationsCleared, struct{}{})
	return nil
}
