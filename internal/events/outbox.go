package events

import (
	"context"
	"fmt"

	generalDomain "github.com/sakashimaa/go-grocery/pkg/domain"
	outboxDomain "github.com/sakashimaa/go-grocery/pkg/outbox/domain"
	"github.com/sakashimaa/go-grocery/pkg/outbox/repository"
)

const (
	AggregateOrder   = "order"
	AggregatePayment = "payment"
	AggregateProduct = "product"
)

type Topics struct {
	Order   string
	Payment string
	Stock   string
}

// OutboxWriter records domain events in the outbox table so the outbox
// worker can publish them to Kafka.
type OutboxWriter struct {
	db     repository.DBTX
	repo   repository.OutboxRepository
	topics Topics
}

func NewOutboxWriter(db repository.DBTX, repo repository.OutboxRepository, topics Topics) *OutboxWriter {
	return &OutboxWriter{db: db, repo: repo, topics: topics}
}

func (w *OutboxWriter) route(event generalDomain.Event) (aggregateType, topic string) {
	switch event.(type) {
	case *generalDomain.OrderPlacedEvent, *generalDomain.OrderStatusChangedEvent, *generalDomain.DeliveryUpdatedEvent:
		return AggregateOrder, w.topics.Order
	case *generalDomain.PaymentStatusChangedEvent:
		return AggregatePayment, w.topics.Payment
	case *generalDomain.StockAlertEvent:
		return AggregateProduct, w.topics.Stock
	}
	return "", ""
}

func (w *OutboxWriter) Handle(ctx context.Context, event generalDomain.Event) error {
	aggregateType, topic := w.route(event)
	if topic == "" {
		return nil
	}

	outboxEvent, err := outboxDomain.NewOutboxEvent(aggregateType, event.AggregateID(), event.EventName(), topic, event)
	if err != nil {
		return fmt.Errorf("build outbox event: %w", err)
	}

	if err := w.repo.SaveOutboxEvent(ctx, w.db, outboxEvent); err != nil {
		return fmt.Errorf("save outbox event: %w", err)
	}
	return nil
}
