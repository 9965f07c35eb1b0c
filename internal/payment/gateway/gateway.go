package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrDeclined = errors.New("payment declined")

type ChargeRequest struct {
	PaymentID string
	OrderID   string
	Amount    decimal.Decimal
	Method    string
}

type Result struct {
	TransactionID string
	Response      map[string]any
}

type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (Result, error)
}

// OutcomeFunc decides whether a simulated charge is declined. A nil error approves it.
type OutcomeFunc func(req ChargeRequest) error

func AlwaysApprove() OutcomeFunc {
	return func(ChargeRequest) error { return nil }
}

// FailureRate declines roughly rate (0..1) of charges.
func FailureRate(rate float64) OutcomeFunc {
	if rate <= 0 {
		return AlwaysApprove()
	}

	return func(ChargeRequest) error {
		if rand.Float64() < rate {
			return fmt.Errorf("%w: simulated issuer decline", ErrDeclined)
		}
		return nil
	}
}

// SimulatedGateway stands in for a card processor. It has no network dependency.
type SimulatedGateway struct {
	latency time.Duration
	outcome OutcomeFunc
}

func NewSimulatedGateway(latency time.Duration, outcome OutcomeFunc) *SimulatedGateway {
	if outcome == nil {
		outcome = AlwaysApprove()
	}

	return &SimulatedGateway{latency: latency, outcome: outcome}
}

func (g *SimulatedGateway) Charge(ctx context.Context, req ChargeRequest) (Result, error) {
	if g.latency > 0 {
		timer := time.NewTimer(g.latency)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	}

	processedAt := time.Now().UTC().Format(time.RFC3339Nano)

	if err := g.outcome(req); err != nil {
		return Result{Response: map[string]any{
			"status":       "declined",
			"error":        err.Error(),
			"processed_at": processedAt,
		}}, err
	}

	txID := "TX" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))

	return Result{
		TransactionID: txID,
		Response: map[string]any{
			"status":         "approved",
			"transaction_id": txID,
			"amount":         req.Amount.StringFixed(2),
			"method":         req.Method,
			"processed_at":   processedAt,
		},
	}, nil
}
