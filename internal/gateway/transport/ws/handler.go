package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-grocery/internal/gateway/transport"
	"github.com/sakashimaa/go-grocery/internal/gateway/transport/http/middleware"
	orderDomain "github.com/sakashimaa/go-grocery/internal/order/domain"
	"github.com/sakashimaa/go-grocery/internal/realtime"
	"github.com/sakashimaa/go-grocery/pkg/auth"
	"github.com/sakashimaa/go-grocery/pkg/mylogger"
	"github.com/sakashimaa/go-grocery/pkg/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	EventUpdateDeliveryLocation = "updateDeliveryLocation"
	EventError                  = "error"

	messageTimeout = 5 * time.Second
	maxMessageSize = 16 << 10
)

type LocationUpdater interface {
	UpdateLocation(ctx context.Context, orderID, location, actingUserID string) (*orderDomain.Order, error)
}

type Registry interface {
	Register(identity auth.Identity, conn realtime.Conn) *realtime.Client
	Unregister(c *realtime.Client)
}

// replier queues a frame for the connection that sent the inbound message.
type replier interface {
	Send(event string, data any) bool
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type LocationMessage struct {
	OrderID  string `json:"order_id" validate:"required"`
	Location string `json:"location" validate:"required,max=500"`
}

type Handler struct {
	hub      Registry
	verifier middleware.TokenVerifier
	orders   LocationUpdater
	validate *validator.Validate
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewHandler(hub Registry, verifier middleware.TokenVerifier, orders LocationUpdater, logger *zap.Logger) *Handler {
	return &Handler{
		hub:      hub,
		verifier: verifier,
		orders:   orders,
		validate: validator.New(),
		logger:   logger,
		tracer:   otel.Tracer("ws_handler"),
	}
}

func (h *Handler) Register(app *fiber.App, path string) {
	app.Use(path, h.Handshake)
	app.Get(path, websocket.New(h.Serve, websocket.Config{
		HandshakeTimeout: 10 * time.Second,
	}))
}

// Handshake authenticates the upgrade request. The token comes from the
// "token" query parameter or a bearer Authorization header.
func (h *Handler) Handshake(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	token := c.Query("token")
	if token == "" {
		token, _ = middleware.BearerToken(c.Get(fiber.HeaderAuthorization))
	}

	identity, err := h.verifier.Verify(token)
	if err != nil {
		mylogger.Warn(c.UserContext(), h.logger, "Websocket handshake rejected", zap.String("ip", c.IP()), zap.Error(err))
		p := transport.Classify(auth.ErrAuthentication)
		return c.Status(p.Status).JSON(p)
	}

	middleware.SetIdentity(c, identity)
	return c.Next()
}

func (h *Handler) Serve(conn *websocket.Conn) {
	identity, ok := conn.Locals(middleware.IdentityKey).(auth.Identity)
	if !ok {
		_ = conn.Close()
		return
	}

	client := h.hub.Register(identity, conn)
	defer func() {
		h.hub.Unregister(client)
		client.Wait()
	}()

	conn.SetReadLimit(maxMessageSize)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("Websocket read failed", zap.String("user_id", identity.UserID), zap.Error(err))
			}
			return
		}

		h.handleMessage(client, identity, raw)
	}
}

func (h *Handler) handleMessage(client replier, identity auth.Identity, raw []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), messageTimeout)
	defer cancel()

	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.replyInvalid(client, "malformed message")
		return
	}

	ctx, span := h.tracer.Start(ctx, "Handler.HandleMessage")
	defer span.End()
	span.SetAttributes(
		attribute.String("ws.event", msg.Event),
		attribute.String("user_id", identity.UserID),
	)

	switch msg.Event {
	case EventUpdateDeliveryLocation:
		h.updateLocation(ctx, client, identity, msg.Data)
	default:
		h.replyInvalid(client, "unknown event "+msg.Event)
	}
}

func (h *Handler) updateLocation(ctx context.Context, client replier, identity auth.Identity, data json.RawMessage) {
	if identity.Role != auth.RoleDelivery {
		client.Send(EventError, transport.Problem{Code: transport.CodeForbidden, Message: "only delivery agents can update locations"})
		return
	}

	var payload LocationMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		h.replyInvalid(client, "malformed location update")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		client.Send(EventError, fiber.Map{
			"error":  "invalid location update",
			"code":   transport.CodeInvalidInput,
			"fields": utils.FormatValidationError(err),
		})
		return
	}

	if _, err := h.orders.UpdateLocation(ctx, payload.OrderID, payload.Location, identity.UserID); err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
		mylogger.Warn(ctx, h.logger, "Location update rejected",
			zap.String("order_id", payload.OrderID),
			zap.String("agent_id", identity.UserID),
			zap.Error(err),
		)
		client.Send(EventError, transport.Classify(err))
	}
}

func (h *Handler) replyInvalid(client replier, msg string) {
	client.Send(EventError, transport.Problem{Code: transport.CodeInvalidInput, Message: msg})
}
