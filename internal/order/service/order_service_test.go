package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	cartDomain "github.com/sakashimaa/go-grocery/internal/cart/domain"
	cartRepository "github.com/sakashimaa/go-grocery/internal/cart/repository"
	inventoryRepository "github.com/sakashimaa/go-grocery/internal/inventory/repository"
	inventoryService "github.com/sakashimaa/go-grocery/internal/inventory/service"
	"github.com/sakashimaa/go-grocery/internal/order/domain"
	"github.com/sakashimaa/go-grocery/internal/order/repository"
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

func (p *recordingPublisher) named(name string) []generalDomain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []generalDomain.Event
	for _, e := range p.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

type failingOrderRepo struct {
	*repository.MemoryRepository
}

func (r failingOrderRepo) Create(context.Context, *domain.Order) error {
	return errors.New("connection refused")
}

var shipping = domain.Address{Street: "1 Main St", City: "Springfield", State: "IL", Zip: "62701", Country: "US"}

type OrderServiceSuite struct {
	suite.Suite

	ctx       context.Context
	publisher *recordingPublisher
	inventory *inventoryService.InventoryService
	carts     *cartRepository.MemoryRepository
	orders    *repository.MemoryRepository
	svc       *OrderService
}

func (s *OrderServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.publisher = &recordingPublisher{}
	s.inventory = inventoryService.NewInventoryService(inventoryRepository.NewMemoryRepository(), s.publisher, nil, zap.NewNop())
	s.carts = cartRepository.NewMemoryRepository()
	s.orders = repository.NewMemoryRepository()
	s.svc = NewOrderService(s.orders, s.carts, s.inventory, s.publisher, nil, zap.NewNop(), 30*time.Minute)
}

func (s *OrderServiceSuite) stock(id string, qty int) {
	_, err := s.inventory.Upsert(s.ctx, inventoryService.UpsertInput{ProductID: id, Name: id, Price: decimal.NewFromInt(1), Stock: qty})
	s.Require().NoError(err)
}

func (s *OrderServiceSuite) stockOf(id string) int {
	entry, err := s.inventory.Get(s.ctx, id)
	s.Require().NoError(err)
	return entry.Stock
}

func (s *OrderServiceSuite) scenarioItems() []domain.LineItem {
	return []domain.LineItem{
		{ProductID: "A", Name: "Apples", UnitPrice: decimal.RequireFromString("3.00"), Quantity: 2},
		{ProductID: "B", Name: "Bananas", UnitPrice: decimal.RequireFromString("5.00"), Quantity: 1},
	}
}

func (s *OrderServiceSuite) placeOrder(customerID string) *domain.Order {
	s.stock("A", 5)
	s.stock("B", 3)

	order, err := s.svc.CreateFromCart(s.ctx, customerID, s.scenarioItems(), shipping, domain.PaymentMethodCreditCard)
	s.Require().NoError(err)
	return order
}

func (s *OrderServiceSuite) TestCreateFromCart_FailsNamingProductAndRollsBack() {
	s.stock("A", 5)
	s.stock("B", 0)

	_, err := s.svc.CreateFromCart(s.ctx, "cust-1", s.scenarioItems(), shipping, domain.PaymentMethodCreditCard)
	s.Require().ErrorIs(err, domain.ErrInsufficientStock)

	var stockErr *domain.InsufficientStockError
	s.Require().True(errors.As(err, &stockErr))
	s.Require().Equal("B", stockErr.ProductID)

	s.Require().Equal(5, s.stockOf("A"))
	s.Require().Equal(0, s.stockOf("B"))

	mine, err := s.svc.ListMine(s.ctx, "cust-1")
	s.Require().NoError(err)
	s.Require().Empty(mine)
	s.Require().Empty(s.publisher.named(generalDomain.EventOrderPlaced))
}

func (s *OrderServiceSuite) TestCreateFromCart_Success() {
	order := s.placeOrder("cust-1")

	s.Require().Equal(domain.OrderStatusPlaced, order.Status)
	s.Require().True(decimal.RequireFromString("11.00").Equal(order.Total))
	s.Require().Equal(domain.PaymentStatePending, order.Payment.Status)
	s.Require().Equal(3, s.stockOf("A"))
	s.Require().Equal(2, s.stockOf("B"))

	placed := s.publisher.named(generalDomain.EventOrderPlaced)
	s.Require().Len(placed, 1)
	s.Require().Equal("cust-1", placed[0].(*generalDomain.OrderPlacedEvent).CustomerID)
}

func (s *OrderServiceSuite) TestCreateFromCart_UnknownProductCompensates() {
	s.stock("A", 5)

	_, err := s.svc.CreateFromCart(s.ctx, "cust-1", s.scenarioItems(), shipping, domain.PaymentMethodPaypal)
	s.Require().ErrorIs(err, domain.ErrInsufficientStock)
	s.Require().Equal(5, s.stockOf("A"))
}

func (s *OrderServiceSuite) TestCreateFromCart_PersistenceFailureCompensates() {
	s.stock("A", 5)
	s.stock("B", 3)

	svc := NewOrderService(failingOrderRepo{s.orders}, s.carts, s.inventory, s.publisher, nil, zap.NewNop(), time.Minute)

	_, err := svc.CreateFromCart(s.ctx, "cust-1", s.scenarioItems(), shipping, domain.PaymentMethodCreditCard)
	s.Require().Error(err)
	s.Require().NotErrorIs(err, domain.ErrInsufficientStock)
	s.Require().Equal(5, s.stockOf("A"))
	s.Require().Equal(3, s.stockOf("B"))
}

func (s *OrderServiceSuite) TestCreateFromCart_RejectsEmptyAndInvalid() {
	_, err := s.svc.CreateFromCart(s.ctx, "cust-1", nil, shipping, domain.PaymentMethodCreditCard)
	s.Require().ErrorIs(err, domain.ErrEmptyCart)

	_, err = s.svc.CreateFromCart(s.ctx, "cust-1", []domain.LineItem{{ProductID: "A", Quantity: 0}}, shipping, domain.PaymentMethodCreditCard)
	s.Require().ErrorIs(err, domain.ErrInvalidInput)

	_, err = s.svc.CreateFromCart(s.ctx, "cust-1", s.scenarioItems(), shipping, "bitcoin")
	s.Require().ErrorIs(err, domain.ErrInvalidInput)
}

func (s *OrderServiceSuite) TestCheckout_ClearsCart() {
	s.stock("A", 5)
	s.stock("B", 3)

	s.Require().NoError(s.carts.Replace(s.ctx, &cartDomain.Cart{
		CustomerID: "cust-1",
		Items: []cartDomain.Item{
			{ProductID: "A", Name: "Apples", UnitPrice: decimal.RequireFromString("3.00"), Quantity: 2},
			{ProductID: "B", Name: "Bananas", UnitPrice: decimal.RequireFromString("5.00"), Quantity: 1},
		},
	}))

	order, err := s.svc.Checkout(s.ctx, CheckoutInput{CustomerID: "cust-1", Shipping: shipping, PaymentMethod: domain.PaymentMethodDebitCard})
	s.Require().NoError(err)
	s.Require().True(decimal.RequireFromString("11").Equal(order.Total))

	cart, err := s.carts.Get(s.ctx, "cust-1")
	s.Require().NoError(err)
	s.Require().True(cart.IsEmpty())

	_, err = s.svc.Checkout(s.ctx, CheckoutInput{CustomerID: "cust-1", Shipping: shipping, PaymentMethod: domain.PaymentMethodDebitCard})
	s.Require().ErrorIs(err, domain.ErrEmptyCart)
}

func (s *OrderServiceSuite) fillCart(customerID string) {
	s.Require().NoError(s.carts.Replace(s.ctx, &cartDomain.Cart{
		CustomerID: customerID,
		Items: []cartDomain.Item{
			{ProductID: "A", Name: "Apples", UnitPrice: decimal.RequireFromString("3.00"), Quantity: 2},
		},
	}))
}

func (s *OrderServiceSuite) TestCheckout_DoubleSubmitCreatesOneOrder() {
	s.stock("A", 50)
	s.fillCart("cust-1")

	var (
		g       errgroup.Group
		created sync.WaitGroup
		mu      sync.Mutex
		placed  int
		empty   int
	)
	created.Add(1)
	for range 8 {
		g.Go(func() error {
			created.Wait()
			_, err := s.svc.Checkout(s.ctx, CheckoutInput{CustomerID: "cust-1", Shipping: shipping, PaymentMethod: domain.PaymentMethodPaypal})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				placed++
			case errors.Is(err, domain.ErrEmptyCart):
				empty++
			default:
				return err
			}
			return nil
		})
	}
	created.Done()
	s.Require().NoError(g.Wait())

	s.Require().Equal(1, placed)
	s.Require().Equal(7, empty)
	s.Require().Equal(48, s.stockOf("A"))

	orders, err := s.svc.ListMine(s.ctx, "cust-1")
	s.Require().NoError(err)
	s.Require().Len(orders, 1)
}

func (s *OrderServiceSuite) TestCheckout_FailureKeepsCart() {
	s.stock("A", 1)
	s.fillCart("cust-2")

	_, err := s.svc.Checkout(s.ctx, CheckoutInput{CustomerID: "cust-2", Shipping: shipping, PaymentMethod: domain.PaymentMethodPaypal})
	s.Require().ErrorIs(err, domain.ErrInsufficientStock)

	cart, err := s.carts.Get(s.ctx, "cust-2")
	s.Require().NoError(err)
	s.Require().Len(cart.Items, 1)
	s.Require().Equal(2, cart.Items[0].Quantity)
}

func (s *OrderServiceSuite) TestCreateFromCart_ConcurrentOrdersForLastUnit() {
	s.stock("A", 1)
	items := []domain.LineItem{{ProductID: "A", Name: "Apples", UnitPrice: decimal.NewFromInt(3), Quantity: 1}}

	var g errgroup.Group
	var mu sync.Mutex
	created, rejected := 0, 0
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := s.svc.CreateFromCart(s.ctx, "cust-1", items, shipping, domain.PaymentMethodCreditCard)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, domain.ErrInsufficientStock):
				rejected++
			default:
				return err
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	s.Require().Equal(1, created)
	s.Require().Equal(7, rejected)
	s.Require().Zero(s.stockOf("A"))
}

func (s *OrderServiceSuite) TestTransitionStatus_FollowsGraph() {
	order := s.placeOrder("cust-1")

	_, err := s.svc.TransitionStatus(s.ctx, order.ID, domain.OrderStatusDelivered, "admin-1")
	s.Require().ErrorIs(err, domain.ErrInvalidTransition)

	stored, err := s.svc.GetByID(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusPlaced, stored.Status)

	_, err = s.svc.TransitionStatus(s.ctx, order.ID, domain.OrderStatusProcessing, "admin-1")
	s.Require().NoError(err)

	updated, err := s.svc.TransitionStatus(s.ctx, order.ID, domain.OrderStatusOutForDelivery, "driver-1")
	s.Require().NoError(err)
	s.Require().Equal("driver-1", updated.DeliveryAgentID)
	s.Require().NotNil(updated.EstimatedDelivery)
	s.Require().WithinDuration(time.Now().Add(30*time.Minute), *updated.EstimatedDelivery, 5*time.Second)

	changed := s.publisher.named(generalDomain.EventOrderStatusChanged)
	s.Require().Len(changed, 2)
	last := changed[1].(*generalDomain.OrderStatusChangedEvent)
	s.Require().Equal("out_for_delivery", last.Status)
	s.Require().Equal("processing", last.PreviousStatus)
	s.Require().NotNil(last.EstimatedDelivery)

	_, err = s.svc.TransitionStatus(s.ctx, order.ID, domain.OrderStatusDelivered, "driver-1")
	s.Require().NoError(err)

	_, err = s.svc.TransitionStatus(s.ctx, order.ID, domain.OrderStatusCancelled, "admin-1")
	s.Require().ErrorIs(err, domain.ErrInvalidTransition)
}

func (s *OrderServiceSuite) TestTransitionStatus_NotFound() {
	_, err := s.svc.TransitionStatus(s.ctx, "missing", domain.OrderStatusProcessing, "admin-1")
	s.Require().ErrorIs(err, domain.ErrOrderNotFound)
}

func (s *OrderServiceSuite) TestCancel_ReturnsStock() {
	order := s.placeOrder("cust-1")

	_, err := s.svc.TransitionStatus(s.ctx, order.ID, domain.OrderStatusCancelled, "admin-1")
	s.Require().NoError(err)

	s.Require().Equal(5, s.stockOf("A"))
	s.Require().Equal(3, s.stockOf("B"))
}

func (s *OrderServiceSuite) TestCancelDueToRefund_BypassesGraphOnce() {
	order := s.placeOrder("cust-1")

	_, err := s.svc.MarkPaid(s.ctx, order.ID, "TX-1")
	s.Require().NoError(err)

	cancelled, err := s.svc.CancelDueToRefund(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusCancelled, cancelled.Status)
	s.Require().Equal(domain.PaymentStateRefunded, cancelled.Payment.Status)
	s.Require().Equal(5, s.stockOf("A"))

	_, err = s.svc.CancelDueToRefund(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(5, s.stockOf("A"))
}

func (s *OrderServiceSuite) TestUpdateLocation_OnlyAssignedAgent() {
	order := s.placeOrder("cust-1")

	_, err := s.svc.UpdateLocation(s.ctx, order.ID, "Elm St", "driver-1")
	s.Require().ErrorIs(err, domain.ErrForbidden)

	_, err = s.svc.TransitionStatus(s.ctx, order.ID, domain.OrderStatusProcessing, "admin-1")
	s.Require().NoError(err)
	_, err = s.svc.TransitionStatus(s.ctx, order.ID, domain.OrderStatusOutForDelivery, "driver-1")
	s.Require().NoError(err)

	_, err = s.svc.UpdateLocation(s.ctx, order.ID, "Elm St", "driver-2")
	s.Require().ErrorIs(err, domain.ErrForbidden)

	updated, err := s.svc.UpdateLocation(s.ctx, order.ID, "Elm St", "driver-1")
	s.Require().NoError(err)
	s.Require().Equal("Elm St", updated.CurrentLocation)

	_, err = s.svc.UpdateLocation(s.ctx, "missing", "Elm St", "driver-1")
	s.Require().ErrorIs(err, domain.ErrOrderNotFound)

	deliveries := s.publisher.named(generalDomain.EventDeliveryUpdated)
	s.Require().Len(deliveries, 1)
	s.Require().Equal("cust-1", deliveries[0].(*generalDomain.DeliveryUpdatedEvent).CustomerID)
}

func (s *OrderServiceSuite) TestGet_Authorization() {
	order := s.placeOrder("cust-1")

	_, err := s.svc.Get(s.ctx, order.ID, auth.Identity{UserID: "cust-2", Role: auth.RoleCustomer})
	s.Require().ErrorIs(err, domain.ErrForbidden)

	_, err = s.svc.Get(s.ctx, order.ID, auth.Identity{UserID: "cust-1", Role: auth.RoleCustomer})
	s.Require().NoError(err)

	_, err = s.svc.Get(s.ctx, order.ID, auth.Identity{UserID: "boss", Role: auth.RoleAdmin})
	s.Require().NoError(err)
}

func (s *OrderServiceSuite) TestConcurrentTransitions_OnlyOneWins() {
	order := s.placeOrder("cust-1")

	var g errgroup.Group
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 5; i++ {
		g.Go(func() error {
			_, err := s.svc.TransitionStatus(s.ctx, order.ID, domain.OrderStatusProcessing, "admin-1")
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())
	s.Require().Equal(1, wins)
}

func TestOrderServiceSuite(t *testing.T) {
	suite.Run(t, new(OrderServiceSuite))
}
