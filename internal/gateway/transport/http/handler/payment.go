package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-grocery/internal/gateway/transport"
	orderDomain "github.com/sakashimaa/go-grocery/internal/order/domain"
	"github.com/sakashimaa/go-grocery/internal/payment/domain"
	"github.com/sakashimaa/go-grocery/pkg/auth"
	"github.com/sakashimaa/go-grocery/pkg/mylogger"
	"go.uber.org/zap"
)

type PaymentService interface {
	Charge(ctx context.Context, orderID, payerID string, method orderDomain.PaymentMethod) (*domain.Payment, error)
	Refund(ctx context.Context, paymentID, reason string) (*domain.Payment, error)
	Get(ctx context.Context, paymentID string, viewer auth.Identity) (*domain.Payment, error)
	History(ctx context.Context, payerID string) ([]domain.Payment, error)
}

type PaymentHandler struct {
	payments PaymentService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewPaymentHandler(payments PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		validate: validator.New(),
		logger:   logger,
	}
}

type ChargeRequest struct {
	OrderID       string `json:"order_id" validate:"required"`
	PaymentMethod string `json:"payment_method" validate:"required,oneof=credit_card debit_card paypal cash_on_delivery"`
}

type RefundRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *PaymentHandler) Charge(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	input := new(ChargeRequest)
	if err := bind(c, h.validate, input); err != nil {
		return badRequest(c, err)
	}

	caller := identity(c)
	payment, err := h.payments.Charge(ctx, input.OrderID, caller.UserID, orderDomain.PaymentMethod(input.PaymentMethod))
	if errors.Is(err, domain.ErrPaymentFailed) && payment != nil {
		p := transport.Classify(err)
		mylogger.Warn(ctx, h.logger, "Payment declined",
			zap.String("order_id", input.OrderID),
			zap.String("payment_id", payment.ID),
			zap.Error(err),
		)
		return c.Status(p.Status).JSON(fiber.Map{
			"error":   p.Message,
			"code":    p.Code,
			"payment": payment,
		})
	}
	if err != nil {
		return respond(ctx, c, h.logger, "charge failed", err, zap.String("order_id", input.OrderID))
	}

	mylogger.Info(ctx, h.logger, "Payment completed",
		zap.String("order_id", payment.OrderID),
		zap.String("payment_id", payment.ID),
		zap.String("transaction_id", payment.TransactionID),
	)

	return c.Status(fiber.StatusCreated).JSON(payment)
}

func (h *PaymentHandler) Refund(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	input := new(RefundRequest)
	if err := bind(c, h.validate, input); err != nil {
		return badRequest(c, err)
	}

	id := c.Params("id")
	payment, err := h.payments.Refund(ctx, id, input.Reason)
	if err != nil {
		return respond(ctx, c, h.logger, "refund failed", err, zap.String("payment_id", id))
	}

	return c.JSON(payment)
}

func (h *PaymentHandler) Get(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	id := c.Params("id")
	payment, err := h.payments.Get(ctx, id, identity(c))
	if err != nil {
		return respond(ctx, c, h.logger, "get payment failed", err, zap.String("payment_id", id))
	}

	return c.JSON(payment)
}

func (h *PaymentHandler) History(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	payments, err := h.payments.History(ctx, identity(c).UserID)
	if err != nil {
		return respond(ctx, c, h.logger, "payment history failed", err)
	}

	return c.JSON(fiber.Map{"payments": payments})
}
