package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-grocery/internal/inventory/domain"
	"github.com/sakashimaa/go-grocery/internal/inventory/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type InventoryService interface {
	Get(ctx context.Context, productID string) (*domain.Entry, error)
	Upsert(ctx context.Context, in service.UpsertInput) (*domain.Entry, error)
	Restock(ctx context.Context, productID string, delta int) (int, error)
	CheckLow(ctx context.Context, productID string) (bool, error)
}

type InventoryHandler struct {
	inventory InventoryService
	validate  *validator.Validate
	logger    *zap.Logger
}

func NewInventoryHandler(inventory InventoryService, logger *zap.Logger) *InventoryHandler {
	return &InventoryHandler{
		inventory: inventory,
		validate:  validator.New(),
		logger:    logger,
	}
}

type UpsertEntryRequest struct {
	ProductID string          `json:"product_id" validate:"required,max=64"`
	Name      string          `json:"name" validate:"required,min=2,max=100"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock" validate:"gte=0,lte=2147483647"`
}

type AdjustStockRequest struct {
	Delta int `json:"delta" validate:"min=-1000000,max=1000000"`
}

type entryResponse struct {
	*domain.Entry
	LowStock bool `json:"low_stock"`
}

func (h *InventoryHandler) Upsert(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	input := new(UpsertEntryRequest)
	if err := bind(c, h.validate, input); err != nil {
		return badRequest(c, err)
	}

	entry, err := h.inventory.Upsert(ctx, service.UpsertInput{
		ProductID: input.ProductID,
		Name:      input.Name,
		Price:     input.Price,
		Stock:     input.Stock,
	})
	if err != nil {
		return respond(ctx, c, h.logger, "upsert inventory failed", err, zap.String("product_id", input.ProductID))
	}

	return c.Status(fiber.StatusCreated).JSON(entryResponse{Entry: entry, LowStock: domain.IsLow(entry.Stock)})
}

func (h *InventoryHandler) AdjustStock(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	input := new(AdjustStockRequest)
	if err := bind(c, h.validate, input); err != nil {
		return badRequest(c, err)
	}

	id := c.Params("id")
	stock, err := h.inventory.Restock(ctx, id, input.Delta)
	if err != nil {
		return respond(ctx, c, h.logger, "adjust stock failed", err, zap.String("product_id", id))
	}

	low, err := h.inventory.CheckLow(ctx, id)
	if err != nil {
		return respond(ctx, c, h.logger, "check low stock failed", err, zap.String("product_id", id))
	}

	return c.JSON(fiber.Map{"product_id": id, "stock": stock, "low_stock": low})
}

func (h *InventoryHandler) Get(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	id := c.Params("id")
	entry, err := h.inventory.Get(ctx, id)
	if err != nil {
		return respond(ctx, c, h.logger, "get inventory failed", err, zap.String("product_id", id))
	}

	return c.JSON(entryResponse{Entry: entry, LowStock: domain.IsLow(entry.Stock)})
}
