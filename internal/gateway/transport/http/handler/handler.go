package handler

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-grocery/internal/gateway/transport"
	"github.com/sakashimaa/go-grocery/internal/gateway/transport/http/middleware"
	"github.com/sakashimaa/go-grocery/pkg/auth"
	"github.com/sakashimaa/go-grocery/pkg/mylogger"
	"github.com/sakashimaa/go-grocery/pkg/utils"
	"go.uber.org/zap"
)

const requestTimeout = 5 * time.Second

type bindError struct {
	fields map[string]string
}

func (e *bindError) Error() string { return "invalid request body" }

// bind parses the JSON body into dst and validates it.
func bind(c *fiber.Ctx, v *validator.Validate, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return &bindError{fields: map[string]string{"body": "error parsing body"}}
	}
	if err := v.Struct(dst); err != nil {
		return &bindError{fields: utils.FormatValidationError(err)}
	}
	return nil
}

func badRequest(c *fiber.Ctx, err error) error {
	body := fiber.Map{
		"error": err.Error(),
		"code":  transport.CodeInvalidInput,
	}

	var be *bindError
	if errors.As(err, &be) {
		body["fields"] = be.fields
	}

	return c.Status(fiber.StatusBadRequest).JSON(body)
}

// respond writes err in its transport form. Internal failures are logged as errors.
func respond(ctx context.Context, c *fiber.Ctx, logger *zap.Logger, msg string, err error, fields ...zap.Field) error {
	p := transport.Classify(err)
	fields = append(fields, zap.Int("http_status", p.Status), zap.Error(err))

	if p.Status >= fiber.StatusInternalServerError {
		mylogger.Error(ctx, logger, msg, fields...)
	} else {
		mylogger.Warn(ctx, logger, msg, fields...)
	}

	return c.Status(p.Status).JSON(p)
}

func identity(c *fiber.Ctx) auth.Identity {
	id, _ := middleware.IdentityFrom(c)
	return id
}

func requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), requestTimeout)
}
