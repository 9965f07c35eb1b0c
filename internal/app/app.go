package app

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	cartRepository "github.com/sakashimaa/go-grocery/internal/cart/repository"
	cartService "github.com/sakashimaa/go-grocery/internal/cart/service"
	"github.com/sakashimaa/go-grocery/internal/events"
	httpTransport "github.com/sakashimaa/go-grocery/internal/gateway/transport/http"
	"github.com/sakashimaa/go-grocery/internal/gateway/transport/http/handler"
	"github.com/sakashimaa/go-grocery/internal/gateway/transport/ws"
	inventoryRepository "github.com/sakashimaa/go-grocery/internal/inventory/repository"
	inventoryService "github.com/sakashimaa/go-grocery/internal/inventory/service"
	"github.com/sakashimaa/go-grocery/internal/metrics"
	notificationRepository "github.com/sakashimaa/go-grocery/internal/notification/repository"
	notificationService "github.com/sakashimaa/go-grocery/internal/notification/service"
	orderRepository "github.com/sakashimaa/go-grocery/internal/order/repository"
	orderService "github.com/sakashimaa/go-grocery/internal/order/service"
	"github.com/sakashimaa/go-grocery/internal/payment/gateway"
	paymentRepository "github.com/sakashimaa/go-grocery/internal/payment/repository"
	paymentService "github.com/sakashimaa/go-grocery/internal/payment/service"
	"github.com/sakashimaa/go-grocery/internal/realtime"
	"github.com/sakashimaa/go-grocery/pkg/auth"
	"go.uber.org/zap"
)

// Stores are the persistence backends the services run on.
type Stores struct {
	Inventory inventoryRepository.InventoryRepository
	Orders    orderRepository.OrderRepository
	Payments  paymentRepository.PaymentRepository
	Carts     cartRepository.CartRepository
	Feed      notificationRepository.FeedStore
}

// MemoryStores keeps everything in process memory.
func MemoryStores(feedLimit int) Stores {
	return Stores{
		Inventory: inventoryRepository.NewMemoryRepository(),
		Orders:    orderRepository.NewMemoryRepository(),
		Payments:  paymentRepository.NewMemoryRepository(),
		Carts:     cartRepository.NewMemoryRepository(),
		Feed:      notificationRepository.NewMemoryFeedStore(feedLimit),
	}
}

type Options struct {
	DeliveryWindow time.Duration
	Gateway        gateway.Gateway
	PaymentTimeout time.Duration
}

type App struct {
	Dispatcher    *events.Dispatcher
	Hub           *realtime.Hub
	Inventory     *inventoryService.InventoryService
	Carts         *cartService.CartService
	Orders        *orderService.OrderService
	Payments      *paymentService.PaymentService
	Notifications *notificationService.NotificationService
	Stores        Stores

	logger *zap.Logger
}

func New(stores Stores, opts Options, m *metrics.Metrics, logger *zap.Logger) *App {
	if opts.Gateway == nil {
		opts.Gateway = gateway.NewSimulatedGateway(0, gateway.AlwaysApprove())
	}

	dispatcher := events.NewDispatcher(logger)
	hub := realtime.NewHub(m, logger)

	notifications := notificationService.NewNotificationService(stores.Feed, hub, m, logger)
	dispatcher.Subscribe("notifications", notifications)

	inventory := inventoryService.NewInventoryService(stores.Inventory, dispatcher, m, logger)
	orders := orderService.NewOrderService(stores.Orders, stores.Carts, inventory, dispatcher, m, logger, opts.DeliveryWindow)

	gw := opts.Gateway
	if opts.PaymentTimeout > 0 {
		gw = gateway.NewGuarded(gw, opts.PaymentTimeout, logger)
	}
	payments := paymentService.NewPaymentService(stores.Payments, orders, gw, dispatcher, m, logger)

	return &App{
		Dispatcher:    dispatcher,
		Hub:           hub,
		Inventory:     inventory,
		Carts:         cartService.NewCartService(stores.Carts, inventory, logger),
		Orders:        orders,
		Payments:      payments,
		Notifications: notifications,
		Stores:        stores,
		logger:        logger,
	}
}

// Mount registers the REST API and the WebSocket endpoint on app.
func (a *App) Mount(app *fiber.App, tokens *auth.TokenManager, gatherer prometheus.Gatherer) {
	ws.NewHandler(a.Hub, tokens, a.Orders, a.logger).Register(app, "/ws")

	httpTransport.RegisterRoutes(app, &httpTransport.Handlers{
		Order:        handler.NewOrderHandler(a.Orders, a.logger),
		Payment:      handler.NewPaymentHandler(a.Payments, a.logger),
		Notification: handler.NewNotificationHandler(a.Notifications, a.logger),
		Inventory:    handler.NewInventoryHandler(a.Inventory, a.logger),
		Cart:         handler.NewCartHandler(a.Carts, a.logger),
	}, tokens, gatherer)
}
