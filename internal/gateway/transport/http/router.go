package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sakashimaa/go-grocery/internal/gateway/transport/http/handler"
	"github.com/sakashimaa/go-grocery/internal/gateway/transport/http/middleware"
	"github.com/sakashimaa/go-grocery/pkg/auth"
)

type Handlers struct {
	Order        *handler.OrderHandler
	Payment      *handler.PaymentHandler
	Notification *handler.NotificationHandler
	Inventory    *handler.InventoryHandler
	Cart         *handler.CartHandler
}

func RegisterRoutes(app *fiber.App, h *Handlers, verifier middleware.TokenVerifier, gatherer prometheus.Gatherer) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := app.Group("/api", middleware.NewAuthMiddleware(verifier))

	adminOnly := middleware.RequireRole(auth.RoleAdmin)
	staff := middleware.RequireRole(auth.RoleAdmin, auth.RoleDelivery)
	deliveryOnly := middleware.RequireRole(auth.RoleDelivery)

	cart := api.Group("/cart")
	cart.Get("", h.Cart.Get)
	cart.Put("", h.Cart.Replace)
	cart.Delete("", h.Cart.Clear)

	order := api.Group("/orders")
	order.Post("", h.Order.Checkout)
	order.Get("", adminOnly, h.Order.List)
	order.Get("/my-orders", h.Order.MyOrders)
	order.Get("/:id", h.Order.Get)
	order.Patch("/:id/status", staff, h.Order.UpdateStatus)
	order.Patch("/:id/location", deliveryOnly, h.Order.UpdateLocation)

	payment := api.Group("/payments")
	payment.Post("", h.Payment.Charge)
	payment.Get("/history", h.Payment.History)
	payment.Get("/:id", h.Payment.Get)
	payment.Post("/:id/refund", adminOnly, h.Payment.Refund)

	notification := api.Group("/notifications")
	notification.Get("", h.Notification.List)
	notification.Patch("/:id/read", h.Notification.MarkRead)
	notification.Delete("", h.Notification.Clear)

	inventory := api.Group("/inventory")
	inventory.Post("", adminOnly, h.Inventory.Upsert)
	inventory.Get("/:id", h.Inventory.Get)
	inventory.Patch("/:id/stock", adminOnly, h.Inventory.AdjustStock)
}
