package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/go-grocery/internal/metrics"
	orderDomain "github.com/sakashimaa/go-grocery/internal/order/domain"
	"github.com/sakashimaa/go-grocery/internal/payment/domain"
	"github.com/sakashimaa/go-grocery/internal/payment/gateway"
	"github.com/sakashimaa/go-grocery/internal/payment/repository"
	"github.com/sakashimaa/go-grocery/pkg/auth"
	generalDomain "github.com/sakashimaa/go-grocery/pkg/domain"
	"github.com/sakashimaa/go-grocery/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const compensationReason = "order no longer payable"

// OrderLifecycle is the slice of the order service payments drive.
type OrderLifecycle interface {
	GetByID(ctx context.Context, orderID string) (*orderDomain.Order, error)
	MarkPaid(ctx context.Context, orderID, transactionID string) (*orderDomain.Order, error)
	CancelDueToRefund(ctx context.Context, orderID string) (*orderDomain.Order, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event generalDomain.Event)
}

type PaymentService struct {
	repo      repository.PaymentRepository
	orders    OrderLifecycle
	gateway   gateway.Gateway
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	tracer    trace.Tracer
}

func NewPaymentService(
	repo repository.PaymentRepository,
	orders OrderLifecycle,
	gw gateway.Gateway,
	publisher EventPublisher,
	m *metrics.Metrics,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		repo:      repo,
		orders:    orders,
		gateway:   gw,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("payment_service"),
	}
}

// Charge takes the single payment an order may have. A declined or timed out gateway call
// leaves the payment failed, the order untouched, and returns domain.ErrPaymentFailed.
func (s *PaymentService) Charge(ctx context.Context, orderID, payerID string, method orderDomain.PaymentMethod) (*domain.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.Charge")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID),
		attribute.String("payer_id", payerID),
	)

	if method == "" || !method.Valid() {
		return nil, fmt.Errorf("%w: unsupported payment method %q", orderDomain.ErrInvalidInput, method)
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if order.CustomerID != payerID {
		return nil, domain.ErrForbidden
	}

	if _, err := s.repo.GetByOrderID(ctx, orderID); err == nil {
		mylogger.Warn(ctx, s.logger, "Duplicate payment attempt", zap.String("order_id", orderID))
		return nil, domain.ErrDuplicatePayment
	} else if !errors.Is(err, domain.ErrPaymentNotFound) {
		return nil, fmt.Errorf("lookup payment for order %s: %w", orderID, err)
	}

	if order.Status != orderDomain.OrderStatusPlaced {
		return nil, fmt.Errorf("%w: order is %s", domain.ErrInvalidState, order.Status)
	}

	now := time.Now().UTC()
	payment := &domain.Payment{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		PayerID:   payerID,
		Amount:    order.Total,
		Method:    string(method),
		Status:    domain.PaymentStatusProcessing,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, payment); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("payment_id", payment.ID))
	s.metrics.PaymentStatus(string(domain.PaymentStatusProcessing))

	result, gwErr := s.gateway.Charge(ctx, gateway.ChargeRequest{
		PaymentID: payment.ID,
		OrderID:   payment.OrderID,
		Amount:    payment.Amount,
		Method:    payment.Method,
	})

	payment.GatewayResponse = result.Response
	payment.UpdatedAt = time.Now().UTC()

	if gwErr != nil {
		span.RecordError(gwErr)
		return s.fail(ctx, payment, gwErr)
	}

	payment.Status = domain.PaymentStatusCompleted
	payment.TransactionID = result.TransactionID

	if err := s.repo.Update(ctx, payment); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("save completed payment: %w", err)
	}

	s.metrics.PaymentStatus(string(payment.Status))

	mylogger.Info(
		ctx,
		s.logger,
		"Payment completed",
		zap.String("payment_id", payment.ID),
		zap.String("order_id", payment.OrderID),
		zap.String("transaction_id", payment.TransactionID),
	)

	_, orderErr := s.orders.MarkPaid(ctx, payment.OrderID, payment.TransactionID)

	s.publishStatus(ctx, payment, "")

	if orderErr != nil {
		span.RecordError(orderErr)
		mylogger.Error(
			ctx,
			s.logger,
			"Payment captured but order was not advanced",
			zap.String("payment_id", payment.ID),
			zap.String("order_id", payment.OrderID),
			zap.Error(orderErr),
		)

		return s.compensate(ctx, payment, orderErr)
	}

	return payment, nil
}

// compensate refunds a captured payment whose order could not be marked paid,
// for example because it was cancelled while the gateway call was in flight.
// The order itself is left as it is.
func (s *PaymentService) compensate(ctx context.Context, payment *domain.Payment, cause error) (*domain.Payment, error) {
	ctx = context.WithoutCancel(ctx)
	advanceErr := fmt.Errorf("advance order %s: %w", payment.OrderID, cause)

	now := time.Now().UTC()
	payment.Status = domain.PaymentStatusRefunded
	payment.Refund = &domain.Refund{
		Amount:     payment.Amount,
		Reason:     compensationReason,
		RefundedAt: now,
		Status:     domain.RefundStatusCompleted,
	}
	payment.UpdatedAt = now

	if err := s.repo.Update(ctx, payment); err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to refund payment for order that was not advanced",
			zap.String("payment_id", payment.ID),
			zap.String("order_id", payment.OrderID),
			zap.Error(err),
		)

		return nil, errors.Join(advanceErr, fmt.Errorf("save compensating refund: %w", err))
	}

	s.metrics.PaymentStatus(string(payment.Status))

	mylogger.Warn(
		ctx,
		s.logger,
		"Payment refunded because order was not advanced",
		zap.String("payment_id", payment.ID),
		zap.String("order_id", payment.OrderID),
		zap.String("amount", payment.Amount.StringFixed(2)),
	)

	s.publishStatus(ctx, payment, compensationReason)

	return payment, advanceErr
}

func (s *PaymentService) fail(ctx context.Context, payment *domain.Payment, cause error) (*domain.Payment, error) {
	payment.Status = domain.PaymentStatusFailed
	if payment.GatewayResponse == nil {
		payment.GatewayResponse = map[string]any{}
	}
	payment.GatewayResponse["error"] = cause.Error()

	if err := s.repo.Update(context.WithoutCancel(ctx), payment); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to persist failed payment", zap.String("payment_id", payment.ID), zap.Error(err))
		return nil, fmt.Errorf("save failed payment: %w", err)
	}

	s.metrics.PaymentStatus(string(payment.Status))

	mylogger.Warn(
		ctx,
		s.logger,
		"Payment failed",
		zap.String("payment_id", payment.ID),
		zap.String("order_id", payment.OrderID),
		zap.Error(cause),
	)

	s.publishStatus(ctx, payment, cause.Error())

	return payment, fmt.Errorf("%w: %v", domain.ErrPaymentFailed, cause)
}

// Refund returns the full amount of a completed payment and cancels its order.
func (s *PaymentService) Refund(ctx context.Context, paymentID, reason string) (*domain.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.Refund")
	defer span.End()

	span.SetAttributes(attribute.String("payment_id", paymentID))

	reason = strings.TrimSpace(reason)

	payment, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if payment.Status != domain.PaymentStatusCompleted {
		return nil, fmt.Errorf("%w: payment is %s", domain.ErrInvalidState, payment.Status)
	}

	now := time.Now().UTC()
	payment.Status = domain.PaymentStatusRefunded
	payment.Refund = &domain.Refund{
		Amount:     payment.Amount,
		Reason:     reason,
		RefundedAt: now,
		Status:     domain.RefundStatusCompleted,
	}
	payment.UpdatedAt = now

	if err := s.repo.Update(ctx, payment); err != nil {
		span.RecordError(err)

		if errors.Is(err, domain.ErrVersionConflict) {
			return nil, fmt.Errorf("%w: payment changed during refund", domain.ErrInvalidState)
		}

		return nil, fmt.Errorf("save refund: %w", err)
	}

	if _, err := s.orders.CancelDueToRefund(ctx, payment.OrderID); err != nil {
		span.RecordError(err)
		mylogger.Error(
			ctx,
			s.logger,
			"Refund recorded but order was not cancelled",
			zap.String("payment_id", payment.ID),
			zap.String("order_id", payment.OrderID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("cancel order %s: %w", payment.OrderID, err)
	}

	s.metrics.PaymentStatus(string(payment.Status))

	mylogger.Info(
		ctx,
		s.logger,
		"Payment refunded",
		zap.String("payment_id", payment.ID),
		zap.String("order_id", payment.OrderID),
		zap.String("amount", payment.Amount.StringFixed(2)),
	)

	s.publishStatus(ctx, payment, reason)

	return payment, nil
}

func (s *PaymentService) Get(ctx context.Context, paymentID string, viewer auth.Identity) (*domain.Payment, error) {
	payment, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if viewer.Role != auth.RoleAdmin && payment.PayerID != viewer.UserID {
		return nil, domain.ErrForbidden
	}

	return payment, nil
}

func (s *PaymentService) History(ctx context.Context, payerID string) ([]domain.Payment, error) {
	return s.repo.ListByPayer(ctx, payerID)
}

func (s *PaymentService) publishStatus(ctx context.Context, payment *domain.Payment, reason string) {
	s.publisher.Publish(ctx, &generalDomain.PaymentStatusChangedEvent{
		PaymentID:     payment.ID,
		OrderID:       payment.OrderID,
		PayerID:       payment.PayerID,
		Status:        string(payment.Status),
		Amount:        payment.Amount,
		TransactionID: payment.TransactionID,
		Reason:        reason,
		ChangedAt:     payment.UpdatedAt,
	})
}
