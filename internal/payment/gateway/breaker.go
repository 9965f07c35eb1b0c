package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sakashimaa/go-grocery/pkg/utils"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	ErrTimeout     = errors.New("payment gateway timed out")
	ErrUnavailable = errors.New("payment gateway unavailable")
)

// Guarded bounds every call with a timeout and stops calling a gateway that keeps failing.
type Guarded struct {
	next    Gateway
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

func NewGuarded(next Gateway, timeout time.Duration, logger *zap.Logger) *Guarded {
	return &Guarded{
		next:    next,
		cb:      utils.NewBreaker("PaymentGateway", logger),
		timeout: timeout,
	}
}

func (g *Guarded) Charge(ctx context.Context, req ChargeRequest) (Result, error) {
	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var declined Result
	res, err := utils.ExecuteWithBreaker(g.cb, func() (Result, error) {
		r, err := g.next.Charge(callCtx, req)
		if err != nil {
			declined = r
		}
		return r, err
	})
	if err == nil {
		return res, nil
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return Result{Response: map[string]any{"status": "unavailable", "error": err.Error()}}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return Result{Response: map[string]any{"status": "timeout", "error": ErrTimeout.Error()}}, ErrTimeout
	default:
		return declined, err
	}
}
