package handler

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-grocery/internal/gateway/transport"
	"github.com/sakashimaa/go-grocery/internal/notification/domain"
	"go.uber.org/zap"
)

type NotificationService interface {
	ListFeed(ctx context.Context, to domain.Recipient) ([]domain.Notification, error)
	MarkRead(ctx context.Context, to domain.Recipient, id int64) error
	ClearFeed(ctx context.Context, to domain.Recipient) error
}

type NotificationHandler struct {
	notifications NotificationService
	logger        *zap.Logger
}

func NewNotificationHandler(notifications NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

// recipient resolves the feed addressed by the request: the caller's own feed,
// or with ?scope=role the shared feed of the caller's role.
func (h *NotificationHandler) recipient(c *fiber.Ctx) (domain.Recipient, bool) {
	caller := identity(c)
	if c.Query("scope") != "role" {
		return domain.User(caller.UserID), true
	}

	channel := caller.Role.Channel()
	if channel == "" {
		return domain.Recipient{}, false
	}
	return domain.Role(channel), true
}

func (h *NotificationHandler) forbidden(c *fiber.Ctx) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"error": "role has no shared feed",
		"code":  transport.CodeForbidden,
	})
}

func (h *NotificationHandler) List(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	to, ok := h.recipient(c)
	if !ok {
		return h.forbidden(c)
	}

	feed, err := h.notifications.ListFeed(ctx, to)
	if err != nil {
		return respond(ctx, c, h.logger, "list notifications failed", err, zap.String("recipient", to.Key()))
	}

	unread := 0
	for _, n := range feed {
		if !n.Read {
			unread++
		}
	}

	return c.JSON(fiber.Map{"notifications": feed, "unread": unread})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	to, ok := h.recipient(c)
	if !ok {
		return h.forbidden(c)
	}

	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return badRequest(c, &bindError{fields: map[string]string{"id": "id must be an integer"}})
	}

	if err := h.notifications.MarkRead(ctx, to, id); err != nil {
		return respond(ctx, c, h.logger, "mark notification read failed", err, zap.Int64("notification_id", id))
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *NotificationHandler) Clear(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	to, ok := h.recipient(c)
	if !ok {
		return h.forbidden(c)
	}

	if err := h.notifications.ClearFeed(ctx, to); err != nil {
		return respond(ctx, c, h.logger, "clear notifications failed", err, zap.String("recipient", to.Key()))
	}

	return c.SendStatus(fiber.StatusNoContent)
}

