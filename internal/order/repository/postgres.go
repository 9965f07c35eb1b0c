package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-grocery/internal/order/domain"
	"github.com/sakashimaa/go-grocery/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// PostgresRepository stores each order as one JSONB document plus the columns it is queried by.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewPostgresRepository(pool *pgxpool.Pool, logger *zap.Logger) *PostgresRepository {
	return &PostgresRepository{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("order/repository"),
	}
}

func (r *PostgresRepository) Create(ctx context.Context, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", order.ID),
		attribute.String("customer_id", order.CustomerID),
	)

	doc, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}

	query := `
		INSERT INTO orders (id, customer_id, status, delivery_agent_id, version, document, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)
	`

	_, err = r.pool.Exec(
		ctx,
		query,
		order.ID,
		order.CustomerID,
		order.Status,
		order.DeliveryAgentID,
		order.Version,
		doc,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to insert order", zap.String("order_id", order.ID), zap.Error(err))

		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetByID")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", id))

	var raw []byte
	if err := r.pool.QueryRow(ctx, `SELECT document FROM orders WHERE id = $1`, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}

		span.RecordError(err)
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}

	var order domain.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("decode order %s: %w", id, err)
	}

	return &order, nil
}

func (r *PostgresRepository) Update(ctx context.Context, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.Update")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", order.ID),
		attribute.Int64("version", order.Version),
	)

	next := *order
	next.Version = order.Version + 1

	doc, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}

	query := `
		UPDATE orders
		SET status = $3,
			delivery_agent_id = NULLIF($4, ''),
			version = $5,
			document = $6,
			updated_at = $7
		WHERE id = $1 AND version = $2
	`

	tag, err := r.pool.Exec(ctx, query, order.ID, order.Version, next.Status, next.DeliveryAgentID, next.Version, doc, next.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("update order %s: %w", order.ID, err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check order %s: %w", order.ID, err)
		}
		if !exists {
			return domain.ErrOrderNotFound
		}

		return domain.ErrVersionConflict
	}

	order.Version = next.Version
	return nil
}

func (r *PostgresRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.ListByCustomer")
	defer span.End()

	span.SetAttributes(attribute.String("customer_id", customerID))

	query := `
		SELECT document
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
	`

	return r.queryDocuments(ctx, span, query, customerID)
}

func (r *PostgresRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.List")
	defer span.End()

	var (
		conditions []string
		args       []any
	)

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	query := `SELECT document FROM orders`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return r.queryDocuments(ctx, span, query, args...)
}

func (r *PostgresRepository) queryDocuments(ctx context.Context, span trace.Span, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var result []domain.Order
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("scan order: %w", err)
		}

		var order domain.Order
		if err := json.Unmarshal(raw, &order); err != nil {
			return nil, fmt.Errorf("decode order: %w", err)
		}

		result = append(result, order)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	span.SetAttributes(attribute.Int("result_count", len(result)))

	return result, nil
}
