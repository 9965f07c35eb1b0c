package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-grocery/internal/inventory/domain"
	"github.com/sakashimaa/go-grocery/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const numericOutOfRange = "22003"

type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewPostgresRepository(pool *pgxpool.Pool, logger *zap.Logger) *PostgresRepository {
	return &PostgresRepository{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("inventory/repository"),
	}
}

func (r *PostgresRepository) Upsert(ctx context.Context, entry *domain.Entry) (domain.Change, error) {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.Upsert")
	defer span.End()

	span.SetAttributes(attribute.String("product_id", entry.ProductID))

	query := `
		WITH prev AS (
			SELECT stock FROM inventory WHERE product_id = $1 FOR UPDATE
		)
		INSERT INTO inventory (product_id, name, price, stock, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (product_id) DO UPDATE
		SET name = EXCLUDED.name,
			price = EXCLUDED.price,
			stock = EXCLUDED.stock,
			updated_at = NOW()
		RETURNING product_id, name, price, stock, updated_at,
			COALESCE((SELECT stock FROM prev), stock),
			NOT EXISTS (SELECT 1 FROM prev)
	`

	var change domain.Change
	err := r.pool.QueryRow(ctx, query, entry.ProductID, entry.Name, entry.Price, entry.Stock).Scan(
		&change.Entry.ProductID,
		&change.Entry.Name,
		&change.Entry.Price,
		&change.Entry.Stock,
		&change.Entry.UpdatedAt,
		&change.Before,
		&change.Created,
	)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to upsert inventory entry", zap.String("product_id", entry.ProductID), zap.Error(err))

		return domain.Change{}, fmt.Errorf("upsert inventory %s: %w", entry.ProductID, err)
	}

	return change, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, productID string) (*domain.Entry, error) {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.GetByID")
	defer span.End()

	span.SetAttributes(attribute.String("product_id", productID))

	query := `
		SELECT product_id, name, price, stock, updated_at
		FROM inventory
		WHERE product_id = $1
	`

	var e domain.Entry
	err := r.pool.QueryRow(ctx, query, productID).Scan(&e.ProductID, &e.Name, &e.Price, &e.Stock, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}

		span.RecordError(err)
		return nil, fmt.Errorf("get inventory %s: %w", productID, err)
	}

	return &e, nil
}

func (r *PostgresRepository) Decrement(ctx context.Context, productID string, quantity int) (domain.Change, error) {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.Decrement")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", productID),
		attribute.Int("quantity", quantity),
	)

	query := `
		UPDATE inventory
		SET stock = stock - $2, updated_at = NOW()
		WHERE product_id = $1
			AND stock >= $2
		RETURNING product_id, name, price, stock, updated_at
	`

	var change domain.Change
	err := r.pool.QueryRow(ctx, query, productID, quantity).Scan(
		&change.Entry.ProductID,
		&change.Entry.Name,
		&change.Entry.Price,
		&change.Entry.Stock,
		&change.Entry.UpdatedAt,
	)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			span.RecordError(err)
			mylogger.Error(
				ctx,
				r.logger,
				"Error decreasing stock",
				zap.String("product_id", productID),
				zap.Int("quantity", quantity),
				zap.Error(err),
			)

			return domain.Change{}, fmt.Errorf("error decreasing stock for product %s: %w", productID, err)
		}

		// Zero rows: either the product is missing or the guard rejected the quantity.
		if _, getErr := r.GetByID(ctx, productID); getErr != nil {
			return domain.Change{}, getErr
		}

		return domain.Change{}, domain.ErrOutOfStock
	}

	change.Before = change.Entry.Stock + quantity

	return change, nil
}

func (r *PostgresRepository) Adjust(ctx context.Context, productID string, delta int) (domain.Change, error) {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.Adjust")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", productID),
		attribute.Int("delta", delta),
	)

	query := `
		WITH prev AS (
			SELECT product_id, stock FROM inventory WHERE product_id = $1 FOR UPDATE
		)
		UPDATE inventory i
		SET stock = GREATEST(prev.stock::bigint + $2::bigint, 0), updated_at = NOW()
		FROM prev
		WHERE i.product_id = prev.product_id
		RETURNING i.product_id, i.name, i.price, i.stock, i.updated_at, prev.stock
	`

	var change domain.Change
	err := r.pool.QueryRow(ctx, query, productID, delta).Scan(
		&change.Entry.ProductID,
		&change.Entry.Name,
		&change.Entry.Price,
		&change.Entry.Stock,
		&change.Entry.UpdatedAt,
		&change.Before,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			mylogger.Warn(ctx, r.logger, "Product not found", zap.String("product_id", productID))
			return domain.Change{}, domain.ErrProductNotFound
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == numericOutOfRange {
			return domain.Change{}, domain.ErrStockOverflow
		}

		span.RecordError(err)
		return domain.Change{}, fmt.Errorf("adjust stock for product %s: %w", productID, err)
	}

	return change, nil
}
