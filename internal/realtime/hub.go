package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sakashimaa/go-grocery/internal/metrics"
	"github.com/sakashimaa/go-grocery/pkg/auth"
	"github.com/sakashimaa/go-grocery/pkg/mylogger"
	"go.uber.org/zap"
)

const defaultSendBuffer = 64

// Conn is the write side of a live connection.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Message is the frame written to clients.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Forwarder hands a message to every instance sharing the hub's channels.
type Forwarder interface {
	Forward(ctx context.Context, channel string, msg Message) error
}

func UserChannel(userID string) string {
	return "user:" + userID
}

type Hub struct {
	mu         sync.RWMutex
	channels   map[string]map[*Client]struct{}
	forwarder  Forwarder
	sendBuffer int
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func NewHub(m *metrics.Metrics, logger *zap.Logger) *Hub {
	return &Hub{
		channels:   make(map[string]map[*Client]struct{}),
		sendBuffer: defaultSendBuffer,
		metrics:    m,
		logger:     logger,
	}
}

// SetForwarder routes pushes through f instead of delivering locally.
// Call before the hub starts serving connections.
func (h *Hub) SetForwarder(f Forwarder) {
	h.forwarder = f
}

// Register joins conn to its user channel and, for staff, its role channel.
// Membership is fixed for the lifetime of the connection.
func (h *Hub) Register(identity auth.Identity, conn Conn) *Client {
	c := &Client{
		id:       uuid.NewString(),
		identity: identity,
		conn:     conn,
		send:     make(chan Message, h.sendBuffer),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
		channels: []string{UserChannel(identity.UserID)},
		hub:      h,
	}
	if ch := identity.Role.Channel(); ch != "" {
		c.channels = append(c.channels, ch)
	}

	h.mu.Lock()
	for _, ch := range c.channels {
		members, ok := h.channels[ch]
		if !ok {
			members = make(map[*Client]struct{})
			h.channels[ch] = members
		}
		members[c] = struct{}{}
	}
	h.mu.Unlock()

	h.metrics.ConnectionOpened()
	h.logger.Debug("Connection registered",
		zap.String("client_id", c.id),
		zap.String("user_id", identity.UserID),
		zap.Strings("channels", c.channels),
	)

	go c.writePump()
	return c
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	for _, ch := range c.channels {
		if members, ok := h.channels[ch]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.channels, ch)
			}
		}
	}
	h.mu.Unlock()

	if c.shutdown() {
		h.metrics.ConnectionClosed()
		h.logger.Debug("Connection unregistered", zap.String("client_id", c.id))
	}
}

func (h *Hub) PushToUser(ctx context.Context, userID, event string, data any) {
	h.push(ctx, UserChannel(userID), Message{Event: event, Data: data})
}

func (h *Hub) PushToRole(ctx context.Context, role auth.Role, event string, data any) {
	ch := role.Channel()
	if ch == "" {
		mylogger.Warn(ctx, h.logger, "Push to role without a channel", zap.String("role", string(role)))
		return
	}
	h.push(ctx, ch, Message{Event: event, Data: data})
}

func (h *Hub) push(ctx context.Context, channel string, msg Message) {
	if h.forwarder != nil {
		err := h.forwarder.Forward(ctx, channel, msg)
		if err == nil {
			return
		}
		mylogger.Warn(ctx, h.logger, "Failed to forward push, delivering locally",
			zap.Error(err),
			zap.String("channel", channel),
			zap.String("event", msg.Event),
		)
	}
	h.Deliver(channel, msg)
}

// Deliver writes msg to every connection of this instance joined to channel.
// It never blocks: a client whose buffer is full misses the message.
func (h *Hub) Deliver(channel string, msg Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.channels[channel] {
		if c.enqueue(msg) {
			delivered++
			h.metrics.Push("delivered")
		} else {
			h.metrics.Push("dropped")
		}
	}
	return delivered
}

// Members reports how many live connections are joined to channel.
func (h *Hub) Members(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make(map[*Client]struct{})
	for _, members := range h.channels {
		for c := range members {
			clients[c] = struct{}{}
		}
	}
	h.channels = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	for c := range clients {
		if c.shutdown() {
			h.metrics.ConnectionClosed()
		}
	}
}
