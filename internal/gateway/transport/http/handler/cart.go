package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-grocery/internal/cart/domain"
	"github.com/sakashimaa/go-grocery/internal/cart/service"
	"go.uber.org/zap"
)

type CartService interface {
	Get(ctx context.Context, customerID string) (*domain.Cart, error)
	Replace(ctx context.Context, customerID string, items []service.ItemInput) (*domain.Cart, error)
	Clear(ctx context.Context, customerID string) error
}

type CartHandler struct {
	carts    CartService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewCartHandler(carts CartService, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		carts:    carts,
		validate: validator.New(),
		logger:   logger,
	}
}

type CartItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

type ReplaceCartRequest struct {
	Items []CartItemRequest `json:"items" validate:"max=100,dive"`
}

func (h *CartHandler) Get(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	cart, err := h.carts.Get(ctx, identity(c).UserID)
	if err != nil {
		return respond(ctx, c, h.logger, "get cart failed", err)
	}

	return c.JSON(cart)
}

func (h *CartHandler) Replace(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	input := new(ReplaceCartRequest)
	if err := bind(c, h.validate, input); err != nil {
		return badRequest(c, err)
	}

	items := make([]service.ItemInput, 0, len(input.Items))
	for _, item := range input.Items {
		items = append(items, service.ItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	cart, err := h.carts.Replace(ctx, identity(c).UserID, items)
	if err != nil {
		return respond(ctx, c, h.logger, "replace cart failed", err)
	}

	return c.JSON(cart)
}

func (h *CartHandler) Clear(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.carts.Clear(ctx, identity(c).UserID); err != nil {
		return respond(ctx, c, h.logger, "clear cart failed", err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
