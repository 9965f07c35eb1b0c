package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-grocery/internal/order/domain"
	"github.com/sakashimaa/go-grocery/internal/order/service"
	"github.com/sakashimaa/go-grocery/pkg/auth"
	"github.com/sakashimaa/go-grocery/pkg/mylogger"
	"go.uber.org/zap"
)

type OrderService interface {
	Checkout(ctx context.Context, in service.CheckoutInput) (*domain.Order, error)
	TransitionStatus(ctx context.Context, orderID string, next domain.OrderStatus, actingUserID string) (*domain.Order, error)
	UpdateLocation(ctx context.Context, orderID, location, actingUserID string) (*domain.Order, error)
	Get(ctx context.Context, orderID string, viewer auth.Identity) (*domain.Order, error)
	ListMine(ctx context.Context, customerID string) ([]domain.Order, error)
	List(ctx context.Context, filter domain.ListFilter) ([]domain.Order, error)
}

type OrderHandler struct {
	orders   OrderService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewOrderHandler(orders OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		validate: validator.New(),
		logger:   logger,
	}
}

type CheckoutRequest struct {
	ShippingAddress domain.Address `json:"shipping_address"`
	PaymentMethod   string         `json:"payment_method" validate:"required,oneof=credit_card debit_card paypal cash_on_delivery"`
}

type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=placed processing out_for_delivery delivered cancelled"`
}

type LocationRequest struct {
	Location string `json:"location" validate:"required,max=500"`
}

func (h *OrderHandler) Checkout(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	input := new(CheckoutRequest)
	if err := bind(c, h.validate, input); err != nil {
		return badRequest(c, err)
	}

	caller := identity(c)
	order, err := h.orders.Checkout(ctx, service.CheckoutInput{
		CustomerID:    caller.UserID,
		Shipping:      input.ShippingAddress,
		PaymentMethod: domain.PaymentMethod(input.PaymentMethod),
	})
	if err != nil {
		return respond(ctx, c, h.logger, "checkout failed", err, zap.String("customer_id", caller.UserID))
	}

	mylogger.Info(ctx, h.logger, "Order placed",
		zap.String("order_id", order.ID),
		zap.String("total", order.Total.StringFixed(2)),
	)

	return c.Status(fiber.StatusCreated).JSON(order)
}

func (h *OrderHandler) MyOrders(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	orders, err := h.orders.ListMine(ctx, identity(c).UserID)
	if err != nil {
		return respond(ctx, c, h.logger, "list my orders failed", err)
	}

	return c.JSON(fiber.Map{"orders": orders})
}

func (h *OrderHandler) Get(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	id := c.Params("id")
	order, err := h.orders.Get(ctx, id, identity(c))
	if err != nil {
		return respond(ctx, c, h.logger, "get order failed", err, zap.String("order_id", id))
	}

	return c.JSON(order)
}

func (h *OrderHandler) List(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	filter := domain.ListFilter{Status: domain.OrderStatus(c.Query("status"))}

	for param, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return badRequest(c, &bindError{fields: map[string]string{param: param + " must be an RFC3339 timestamp"}})
		}
		*dst = &t
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return badRequest(c, &bindError{fields: map[string]string{"limit": "limit must be a non-negative integer"}})
		}
		filter.Limit = limit
	}

	orders, err := h.orders.List(ctx, filter)
	if err != nil {
		return respond(ctx, c, h.logger, "list orders failed", err)
	}

	return c.JSON(fiber.Map{"orders": orders})
}

func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	input := new(StatusRequest)
	if err := bind(c, h.validate, input); err != nil {
		return badRequest(c, err)
	}

	id := c.Params("id")
	caller := identity(c)
	order, err := h.orders.TransitionStatus(ctx, id, domain.OrderStatus(input.Status), caller.UserID)
	if err != nil {
		return respond(ctx, c, h.logger, "update order status failed", err,
			zap.String("order_id", id),
			zap.String("status", input.Status),
		)
	}

	return c.JSON(order)
}

func (h *OrderHandler) UpdateLocation(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	input := new(LocationRequest)
	if err := bind(c, h.validate, input); err != nil {
		return badRequest(c, err)
	}

	id := c.Params("id")
	order, err := h.orders.UpdateLocation(ctx, id, input.Location, identity(c).UserID)
	if err != nil {
		return respond(ctx, c, h.logger, "update location failed", err, zap.String("order_id", id))
	}

	return c.JSON(order)
}
