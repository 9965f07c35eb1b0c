package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

const RefundStatusCompleted = "completed"

var (
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrDuplicatePayment = errors.New("payment already exists for this order")
	ErrInvalidState     = errors.New("invalid payment state")
	ErrPaymentFailed    = errors.New("payment failed")
	ErrForbidden        = errors.New("forbidden")
	ErrVersionConflict  = errors.New("payment was modified concurrently")
)

type Refund struct {
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
	RefundedAt time.Time       `json:"refunded_at"`
	Status     string          `json:"status"`
}

type Payment struct {
	ID              string          `json:"id"`
	OrderID         string          `json:"order_id"`
	PayerID         string          `json:"payer_id"`
	Amount          decimal.Decimal `json:"amount"`
	Method          string          `json:"method"`
	Status          PaymentStatus   `json:"status"`
	TransactionID   string          `json:"transaction_id,omitempty"`
	GatewayResponse map[string]any  `json:"gateway_response,omitempty"`
	Refund          *Refund         `json:"refund,omitempty"`
	Version         int64           `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
