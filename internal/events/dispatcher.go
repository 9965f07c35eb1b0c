package events

import (
	"context"

	generalDomain "github.com/sakashimaa/go-grocery/pkg/domain"
	"github.com/sakashimaa/go-grocery/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Handler interface {
	Handle(ctx context.Context, event generalDomain.Event) error
}

type HandlerFunc func(ctx context.Context, event generalDomain.Event) error

func (f HandlerFunc) Handle(ctx context.Context, event generalDomain.Event) error {
	return f(ctx, event)
}

type subscriber struct {
	name    string
	handler Handler
}

// Dispatcher delivers every domain event to its subscribers in order,
// synchronously, before Publish returns. A failing subscriber is logged
// and does not stop the others.
type Dispatcher struct {
	subscribers []subscriber
	logger      *zap.Logger
	tracer      trace.Tracer
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		logger: logger,
		tracer: otel.Tracer("event_dispatcher"),
	}
}

// Subscribe must be called before the first Publish.
func (d *Dispatcher) Subscribe(name string, h Handler) {
	d.subscribers = append(d.subscribers, subscriber{name: name, handler: h})
}

func (d *Dispatcher) Publish(ctx context.Context, event generalDomain.Event) {
	// The state change behind the event is already committed.
	ctx = context.WithoutCancel(ctx)

	ctx, span := d.tracer.Start(ctx, "Dispatcher.Publish")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.name", event.EventName()),
		attribute.String("event.aggregate_id", event.AggregateID()),
	)

	for _, sub := range d.subscribers {
		if err := sub.handler.Handle(ctx, event); err != nil {
			span.RecordError(err)
			mylogger.Error(ctx, d.logger, "Event subscriber failed",
				zap.Error(err),
				zap.String("subscriber", sub.name),
				zap.String("event", event.EventName()),
				zap.String("aggregate_id", event.AggregateID()),
			)
		}
	}
}
