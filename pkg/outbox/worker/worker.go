package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/go-grocery/pkg/mylogger"
	"github.com/sakashimaa/go-grocery/pkg/outbox/domain"
	"github.com/sakashimaa/go-grocery/pkg/outbox/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type KafkaProducer interface {
	ProduceMessage(ctx context.Context, topic, key string, message any) error
}

type Settings struct {
	BatchSize int
	Interval  time.Duration
}

type OutboxProcessor struct {
	db            TxBeginner
	repo          repository.OutboxRepository
	kafkaProducer KafkaProducer
	logger        *zap.Logger
	batchSize     int
	interval      time.Duration
	tracer        trace.Tracer
}

func NewOutboxProcessor(
	db TxBeginner,
	repo repository.OutboxRepository,
	producer KafkaProducer,
	logger *zap.Logger,
	settings Settings,
) *OutboxProcessor {
	if settings.BatchSize <= 0 {
		settings.BatchSize = 50
	}
	if settings.Interval <= 0 {
		settings.Interval = 500 * time.Millisecond
	}

	return &OutboxProcessor{
		db:            db,
		repo:          repo,
		kafkaProducer: producer,
		logger:        logger,
		batchSize:     settings.BatchSize,
		interval:      settings.Interval,
		tracer:        otel.Tracer("outbox-worker"),
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	mylogger.Info(
		ctx,
		p.logger,
		"Starting outbox processor",
		zap.Int("batch_size", p.batchSize),
		zap.Duration("interval", p.interval),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(ctx, p.logger, "Outbox processor stopping")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				mylogger.Error(
					ctx,
					p.logger,
					"Error processing outbox batch",
					zap.Error(err),
				)
			}
		}
	}
}

// ProcessBatch relays one batch and returns how many events were published.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	ctx, span := p.tracer.Start(ctx, "OutboxProcessor.ProcessBatch")
	defer span.End()

	tx, err := p.db.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(cleanupCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(
				cleanupCtx,
				p.logger,
				"Outbox worker failed to rollback transaction",
				zap.Error(err),
			)
		}
	}()

	events, err := p.repo.GetUnpublishedEvents(ctx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}

	if len(events) == 0 {
		return 0, nil
	}

	mylogger.Debug(ctx, p.logger, "Processing outbox events", zap.Int("count", len(events)))

	published := 0
	for _, event := range events {
		if err := p.relay(ctx, event); err != nil {
			mylogger.Warn(
				ctx,
				p.logger,
				"Outbox relay failed",
				zap.Int64("id", event.ID),
				zap.String("event_type", event.EventType),
				zap.Int64("attempts", event.Attempts+1),
				zap.Error(err),
			)

			if dbErr := p.repo.MarkEventFailed(ctx, tx, event.ID, err.Error()); dbErr != nil {
				return published, fmt.Errorf("mark event %d failed: %w", event.ID, dbErr)
			}

			continue
		}

		if err := p.repo.MarkEventPublished(ctx, tx, event.ID); err != nil {
			return published, fmt.Errorf("mark event %d published: %w", event.ID, err)
		}

		published++
	}

	span.SetAttributes(attribute.Int("published", published))

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit outbox batch: %w", err)
	}

	return published, nil
}

func (p *OutboxProcessor) relay(ctx context.Context, event *domain.OutboxEvent) error {
	var envelope map[string]any
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	envelope["event_id"] = event.ID

	return p.kafkaProducer.ProduceMessage(ctx, event.Topic, event.AggregateID, envelope)
}
