package service

import (
	"context"
	"sync"
	"testing"
	"time"

	cartRepository "github.com/sakashimaa/go-grocery/internal/cart/repository"
	inventoryRepository "github.com/sakashimaa/go-grocery/internal/inventory/repository"
	inventoryService "github.com/sakashimaa/go-grocery/internal/inventory/service"
	orderDomain "github.com/sakashimaa/go-grocery/internal/order/domain"
	orderRepository "github.com/sakashimaa/go-grocery/internal/order/repository"
	orderService "github.com/sakashimaa/go-grocery/internal/order/service"
	"github.com/sakashimaa/go-grocery/internal/payment/domain"
	"github.com/sakashimaa/go-grocery/internal/payment/gateway"
	"github.com/sakashimaa/go-grocery/internal/payment/repository"
	"github.com/sakashimaa/go-grocery/pkg/auth"
	generalDomain "github.com/sakashimaa/go-grocery/pkg/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []generalDomain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event generalDomain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) paymentStatuses() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []string
	for _, e := range p.events {
		if ev, ok := e.(*generalDomain.PaymentStatusChangedEvent); ok {
			out = append(out, ev.Status)
		}
	}
	return out
}

type PaymentServiceSuite struct {
	suite.Suite

	ctx       context.Context
	publisher *recordingPublisher
	inventory *inventoryService.InventoryService
	orders    *orderService.OrderService
	payments  *repository.MemoryRepository
}

func (s *PaymentServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.publisher = &recordingPublisher{}
	s.inventory = inventoryService.NewInventoryService(inventoryRepository.NewMemoryRepository(), s.publisher, nil, zap.NewNop())
	s.orders = orderService.NewOrderService(
		orderRepository.NewMemoryRepository(),
		cartRepository.NewMemoryRepository(),
		s.inventory,
		s.publisher,
		nil,
		zap.NewNop(),
		time.Hour,
	)
	s.payments = repository.NewMemoryRepository()
}

func (s *PaymentServiceSuite) service(outcome gateway.OutcomeFunc) *PaymentService {
	gw := gateway.NewGuarded(gateway.NewSimulatedGateway(0, outcome), time.Second, zap.NewNop())
	return NewPaymentService(s.payments, s.orders, gw, s.publisher, nil, zap.NewNop())
}

func (s *PaymentServiceSuite) placeOrder() *orderDomain.Order {
	for id, stock := range map[string]int{"A": 5, "B": 3} {
		_, err := s.inventory.Upsert(s.ctx, inventoryService.UpsertInput{ProductID: id, Name: id, Stock: stock})
		s.Require().NoError(err)
	}

	order, err := s.orders.CreateFromCart(s.ctx, "cust-1", []orderDomain.LineItem{
		{ProductID: "A", Name: "Apples", UnitPrice: decimal.RequireFromString("3.00"), Quantity: 2},
		{ProductID: "B", Name: "Bananas", UnitPrice: decimal.RequireFromString("5.00"), Quantity: 1},
	}, orderDomain.Address{Street: "1 Main", City: "X", State: "Y", Zip: "1", Country: "US"}, orderDomain.PaymentMethodCreditCard)
	s.Require().NoError(err)

	return order
}

func (s *PaymentServiceSuite) orderStatus(id string) orderDomain.OrderStatus {
	order, err := s.orders.GetByID(s.ctx, id)
	s.Require().NoError(err)
	return order.Status
}

func (s *PaymentServiceSuite) TestCharge_CompletesAndAdvancesOrder() {
	order := s.placeOrder()
	svc := s.service(nil)

	payment, err := svc.Charge(s.ctx, order.ID, "cust-1", orderDomain.PaymentMethodCreditCard)
	s.Require().NoError(err)
	s.Require().Equal(domain.PaymentStatusCompleted, payment.Status)
	s.Require().NotEmpty(payment.TransactionID)
	s.Require().True(decimal.RequireFromString("11.00").Equal(payment.Amount))
	s.Require().Equal("approved", payment.GatewayResponse["status"])

	stored, err := s.orders.GetByID(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(orderDomain.OrderStatusProcessing, stored.Status)
	s.Require().Equal(payment.TransactionID, stored.Payment.TransactionID)
	s.Require().Equal(orderDomain.PaymentStateCompleted, stored.Payment.Status)

	s.Require().Equal([]string{"completed"}, s.publisher.paymentStatuses())
}

func (s *PaymentServiceSuite) TestCharge_DuplicateRejected() {
	order := s.placeOrder()
	svc := s.service(nil)

	_, err := svc.Charge(s.ctx, order.ID, "cust-1", orderDomain.PaymentMethodCreditCard)
	s.Require().NoError(err)

	_, err = svc.Charge(s.ctx, order.ID, "cust-1", orderDomain.PaymentMethodCreditCard)
	s.Require().ErrorIs(err, domain.ErrDuplicatePayment)
}

func (s *PaymentServiceSuite) TestCharge_ConcurrentAttemptsCompleteOnce() {
	order := s.placeOrder()
	svc := s.service(nil)

	var g errgroup.Group
	var mu sync.Mutex
	completed, duplicates := 0, 0
	for i := 0; i < 6; i++ {
		g.Go(func() error {
			_, err := svc.Charge(s.ctx, order.ID, "cust-1", orderDomain.PaymentMethodCreditCard)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				completed++
			} else {
				s.ErrorIs(err, domain.ErrDuplicatePayment)
				duplicates++
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	s.Require().Equal(1, completed)
	s.Require().Equal(5, duplicates)
}

func (s *PaymentServiceSuite) TestCharge_OrderNotFoundAndForbidden() {
	svc := s.service(nil)

	_, err := svc.Charge(s.ctx, "missing", "cust-1", orderDomain.PaymentMethodCreditCard)
	s.Require().ErrorIs(err, orderDomain.ErrOrderNotFound)

	order := s.placeOrder()
	_, err = svc.Charge(s.ctx, order.ID, "someone-else", orderDomain.PaymentMethodCreditCard)
	s.Require().ErrorIs(err, domain.ErrForbidden)

	_, err = svc.Charge(s.ctx, order.ID, "cust-1", "barter")
	s.Require().ErrorIs(err, orderDomain.ErrInvalidInput)
}

func (s *PaymentServiceSuite) TestCharge_DeclineLeavesOrderUntouched() {
	order := s.placeOrder()
	svc := s.service(gateway.FailureRate(1))

	payment, err := svc.Charge(s.ctx, order.ID, "cust-1", orderDomain.PaymentMethodDebitCard)
	s.Require().ErrorIs(err, domain.ErrPaymentFailed)
	s.Require().NotNil(payment)
	s.Require().Equal(domain.PaymentStatusFailed, payment.Status)
	s.Require().Contains(payment.GatewayResponse["error"], "decline")

	s.Require().Equal(orderDomain.OrderStatusPlaced, s.orderStatus(order.ID))
	s.Require().Equal([]string{"failed"}, s.publisher.paymentStatuses())

	_, err = svc.Charge(s.ctx, order.ID, "cust-1", orderDomain.PaymentMethodDebitCard)
	s.Require().ErrorIs(err, domain.ErrDuplicatePayment)
}

func (s *PaymentServiceSuite) TestCharge_TimeoutIsPaymentFailed() {
	order := s.placeOrder()
	gw := gateway.NewGuarded(gateway.NewSimulatedGateway(time.Second, nil), 10*time.Millisecond, zap.NewNop())
	svc := NewPaymentService(s.payments, s.orders, gw, s.publisher, nil, zap.NewNop())

	payment, err := svc.Charge(s.ctx, order.ID, "cust-1", orderDomain.PaymentMethodPaypal)
	s.Require().ErrorIs(err, domain.ErrPaymentFailed)
	s.Require().Equal("timeout", payment.GatewayResponse["status"])
	s.Require().Equal(orderDomain.OrderStatusPlaced, s.orderStatus(order.ID))
}

func (s *PaymentServiceSuite) TestCharge_CancelledOrderIsInvalidState() {
	order := s.placeOrder()
	_, err := s.orders.TransitionStatus(s.ctx, order.ID, orderDomain.OrderStatusCancelled, "admin")
	s.Require().NoError(err)

	_, err = s.service(nil).Charge(s.ctx, order.ID, "cust-1", orderDomain.PaymentMethodCreditCard)
	s.Require().ErrorIs(err, domain.ErrInvalidState)
}

func (s *PaymentServiceSuite) TestCharge_OrderCancelledMidChargeRefunds() {
	order := s.placeOrder()
	svc := s.service(func(gateway.ChargeRequest) error {
		_, err := s.orders.TransitionStatus(context.Background(), order.ID, orderDomain.OrderStatusCancelled, "admin")
		return err
	})

	payment, err := svc.Charge(s.ctx, order.ID, "cust-1", orderDomain.PaymentMethodCreditCard)
	s.Require().ErrorIs(err, orderDomain.ErrInvalidTransition)
	s.Require().NotNil(payment)
	s.Require().Equal(domain.PaymentStatusRefunded, payment.Status)
	s.Require().NotNil(payment.Refund)
	s.Require().True(payment.Amount.Equal(payment.Refund.Amount))
	s.Require().Equal(domain.RefundStatusCompleted, payment.Refund.Status)

	stored, err := s.payments.GetByID(s.ctx, payment.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.PaymentStatusRefunded, stored.Status)

	s.Require().Equal(orderDomain.OrderStatusCancelled, s.orderStatus(order.ID))
	s.Require().Equal([]string{"completed", "refunded"}, s.publisher.paymentStatuses())
}

func (s *PaymentServiceSuite) TestRefund_CancelsProcessingOrder() {
	order := s.placeOrder()
	svc := s.service(nil)

	payment, err := svc.Charge(s.ctx, order.ID, "cust-1", orderDomain.PaymentMethodCreditCard)
	s.Require().NoError(err)
	s.Require().Equal(orderDomain.OrderStatusProcessing, s.orderStatus(order.ID))

	refunded, err := svc.Refund(s.ctx, payment.ID, "customer request")
	s.Require().NoError(err)
	s.Require().Equal(domain.PaymentStatusRefunded, refunded.Status)
	s.Require().NotNil(refunded.Refund)
	s.Require().True(payment.Amount.Equal(refunded.Refund.Amount))
	s.Require().Equal("customer request", refunded.Refund.Reason)
	s.Require().Equal(domain.RefundStatusCompleted, refunded.Refund.Status)

	s.Require().Equal(orderDomain.OrderStatusCancelled, s.orderStatus(order.ID))
	s.Require().Equal([]string{"completed", "refunded"}, s.publisher.paymentStatuses())

	_, err = svc.Refund(s.ctx, payment.ID, "again")
	s.Require().ErrorIs(err, domain.ErrInvalidState)
}

func (s *PaymentServiceSuite) TestRefund_RequiresCompleted() {
	order := s.placeOrder()
	svc := s.service(gateway.FailureRate(1))

	payment, err := svc.Charge(s.ctx, order.ID, "cust-1", orderDomain.PaymentMethodCreditCard)
	s.Require().ErrorIs(err, domain.ErrPaymentFailed)

	_, err = svc.Refund(s.ctx, payment.ID, "nope")
	s.Require().ErrorIs(err, domain.ErrInvalidState)
	s.Require().Equal(orderDomain.OrderStatusPlaced, s.orderStatus(order.ID))

	_, err = svc.Refund(s.ctx, "missing", "nope")
	s.Require().ErrorIs(err, domain.ErrPaymentNotFound)
}

func (s *PaymentServiceSuite) TestGetAndHistory() {
	order := s.placeOrder()
	svc := s.service(nil)

	payment, err := svc.Charge(s.ctx, order.ID, "cust-1", orderDomain.PaymentMethodCreditCard)
	s.Require().NoError(err)

	_, err = svc.Get(s.ctx, payment.ID, auth.Identity{UserID: "cust-2", Role: auth.RoleCustomer})
	s.Require().ErrorIs(err, domain.ErrForbidden)

	got, err := svc.Get(s.ctx, payment.ID, auth.Identity{UserID: "admin", Role: auth.RoleAdmin})
	s.Require().NoError(err)
	s.Require().Equal(payment.ID, got.ID)

	history, err := svc.History(s.ctx, "cust-1")
	s.Require().NoError(err)
	s.Require().Len(history, 1)
}

func TestPaymentServiceSuite(t *testing.T) {
	suite.Run(t, new(PaymentServiceSuite))
}
