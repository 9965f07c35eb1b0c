package domain

import (
	"errors"
	"sync/atomic"
	"time"
)

type Category string

const (
	CategoryOrderStatus    Category = "order_status"
	CategoryPaymentStatus  Category = "payment_status"
	CategoryDeliveryUpdate Category = "delivery_update"
	CategoryStockAlert     Category = "stock_alert"
	CategoryGeneral        Category = "general"
)

var ErrInvalidRecipient = errors.New("invalid notification recipient")

// Recipient is either a single user or a whole role channel.
type Recipient struct {
	UserID string
	Role   string
}

func User(id string) Recipient { return Recipient{UserID: id} }
func Role(role string) Recipient { return Recipient{Role: role} }
func (r Recipient) IsRole() bool { return r.UserID == "" && r.Role != "" }
func (r Recipient) Valid() bool { return (r.UserID == "") != (r.Role == "") }

// Key is the feed storage key.
func (r Recipient) Key() string {
	if r.IsRole() {
		return "role:" + r.Role
	}
	return "user:" + r.UserID
}

type Notification struct {
	ID        int64          `json:"id"`
	UserID    *string        `json:"user_id"`
	Role      string         `json:"role,omitempty"`
	Category  Category       `json:"category"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"created_at"`
}

func (n *Notification) Recipient() Recipient {
	if n.UserID == nil {
		return Role(n.Role)
	}
	return User(*n.UserID)
}

// IDGenerator yields time-derived ids that strictly increase within a process,
// even when the clock stalls or steps back.
type IDGenerator struct {
	last atomic.Int64
	now  func() time.Time
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

func (g *IDGenerator) Next() int64 {
	for {
		last := g.last.Load()
		next := max(g.now().UnixMilli(), last+1)
		if g.last.CompareAndSwap(last, next) {
			return next
		}
	}
}
