package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderPlaced          = "OrderPlaced"
	EventOrderStatusChanged   = "OrderStatusChanged"
	EventDeliveryUpdated      = "DeliveryUpdated"
	EventStockAlert           = "StockAlert"
	EventPaymentStatusChanged = "PaymentStatusChanged"
)

// Event is a domain event produced by the order, payment and inventory flows.
type Event interface {
	EventName() string
	AggregateID() string
}

type OrderItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

type OrderPlacedEvent struct {
	OrderID    string          `json:"order_id"`
	CustomerID string          `json:"customer_id"`
	Status     string          `json:"status"`
	Total      decimal.Decimal `json:"total"`
	Items      []OrderItem     `json:"items"`
	PlacedAt   time.Time       `json:"placed_at"`
}

func (e *OrderPlacedEvent) EventName() string   { return EventOrderPlaced }
func (e *OrderPlacedEvent) AggregateID() string { return e.OrderID }

type OrderStatusChangedEvent struct {
	OrderID           string      `json:"order_id"`
	CustomerID        string      `json:"customer_id"`
	DeliveryAgentID   string      `json:"delivery_agent_id,omitempty"`
	PreviousStatus    string      `json:"previous_status"`
	Status            string      `json:"status"`
	EstimatedDelivery *time.Time  `json:"estimated_delivery,omitempty"`
	Items             []OrderItem `json:"items,omitempty"`
	ChangedAt         time.Time   `json:"changed_at"`
}

func (e *OrderStatusChangedEvent) EventName() string   { return EventOrderStatusChanged }
func (e *OrderStatusChangedEvent) AggregateID() string { return e.OrderID }

type DeliveryUpdatedEvent struct {
	OrderID         string    `json:"order_id"`
	CustomerID      string    `json:"customer_id"`
	DeliveryAgentID string    `json:"delivery_agent_id"`
	Location        string    `json:"location"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (e *DeliveryUpdatedEvent) EventName() string   { return EventDeliveryUpdated }
func (e *DeliveryUpdatedEvent) AggregateID() string { return e.OrderID }

type StockAlertEvent struct {
	ProductID string    `json:"product_id"`
	Name      string    `json:"name"`
	Stock     int       `json:"stock"`
	Threshold int       `json:"threshold"`
	RaisedAt  time.Time `json:"raised_at"`
}

func (e *StockAlertEvent) EventName() string   { return EventStockAlert }
func (e *StockAlertEvent) AggregateID() string { return e.ProductID }

type PaymentStatusChangedEvent struct {
	PaymentID     string          `json:"payment_id"`
	OrderID       string          `json:"order_id"`
	PayerID       string          `json:"payer_id"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	ChangedAt     time.Time       `json:"changed_at"`
}

func (e *PaymentStatusChangedEvent) EventName() string   { return EventPaymentStatusChanged }
func (e *PaymentStatusChangedEvent) AggregateID() string { return e.PaymentID }
