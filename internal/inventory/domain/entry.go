package domain

import (
	"errors"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// LowStockThreshold is the stock level at or below which a product is considered low.
const LowStockThreshold = 10

const (
	// MaxStock matches the INTEGER stock column so both stores accept the same values.
	MaxStock = math.MaxInt32
	// MaxStockDelta bounds a single restock or correction.
	MaxStockDelta = 1_000_000
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrOutOfStock      = errors.New("insufficient stock")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidEntry    = errors.New("invalid inventory entry")
	ErrStockOverflow   = errors.New("stock would exceed the maximum")
)

type Entry struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func IsLow(stock int) bool {
	return stock <= LowStockThreshold
}

// CrossedLow reports a mutation that moved stock from above the threshold to at or below it.
func CrossedLow(before, after int) bool {
	return !IsLow(before) && IsLow(after)
}

// Change is the outcome of a single stock mutation. Created marks an upsert
// that inserted the entry, which counts as coming from above the threshold.
type Change struct {
	Entry   Entry
	Before  int
	Created bool
}

func (c Change) CrossedLow() bool {
	if c.Created {
		return IsLow(c.Entry.Stock)
	}
	return CrossedLow(c.Before, c.Entry.Stock)
}
