package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-grocery/internal/cart/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type PostgresRepository struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{
		pool:   pool,
		tracer: otel.Tracer("cart/repository"),
	}
}

func (r *PostgresRepository) Get(ctx context.Context, customerID string) (*domain.Cart, error) {
	ctx, span := r.tracer.Start(ctx, "CartRepository.Get")
	defer span.End()

	span.SetAttributes(attribute.String("customer_id", customerID))

	cart := &domain.Cart{CustomerID: customerID, Items: []domain.Item{}}

	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT items, updated_at FROM carts WHERE customer_id = $1`, customerID).
		Scan(&raw, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cart, nil
		}

		span.RecordError(err)
		return nil, fmt.Errorf("get cart %s: %w", customerID, err)
	}

	if err := json.Unmarshal(raw, &cart.Items); err != nil {
		return nil, fmt.Errorf("decode cart %s: %w", customerID, err)
	}

	return cart, nil
}

func (r *PostgresRepository) Replace(ctx context.Context, cart *domain.Cart) error {
	ctx, span := r.tracer.Start(ctx, "CartRepository.Replace")
	defer span.End()

	span.SetAttributes(
		attribute.String("customer_id", cart.CustomerID),
		attribute.Int("items", len(cart.Items)),
	)

	items := cart.Items
	if items == nil {
		items = []domain.Item{}
	}

	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}

	query := `
		INSERT INTO carts (customer_id, items, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (customer_id) DO UPDATE
		SET items = EXCLUDED.items, updated_at = NOW()
	`

	if _, err := r.pool.Exec(ctx, query, cart.CustomerID, raw); err != nil {
		span.RecordError(err)
		return fmt.Errorf("replace cart %s: %w", cart.CustomerID, err)
	}

	return nil
}

func (r *PostgresRepository) Clear(ctx context.Context, customerID string) error {
	ctx, span := r.tracer.Start(ctx, "CartRepository.Clear")
	defer span.End()

	if _, err := r.pool.Exec(ctx, `DELETE FROM carts WHERE customer_id = $1`, customerID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("clear cart %s: %w", customerID, err)
	}

	return nil
}

func (r *PostgresRepository) Take(ctx context.Context, customerID string) (*domain.Cart, error) {
	ctx, span := r.tracer.Start(ctx, "CartRepository.Take")
	defer span.End()

	span.SetAttributes(attribute.String("customer_id", customerID))

	cart := &domain.Cart{CustomerID: customerID, Items: []domain.Item{}}

	var raw []byte
	err := r.pool.QueryRow(ctx, `DELETE FROM carts WHERE customer_id = $1 RETURNING items, updated_at`, customerID).
		Scan(&raw, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cart, nil
		}

		span.RecordError(err)
		return nil, fmt.Errorf("take cart %s: %w", customerID, err)
	}

	if err := json.Unmarshal(raw, &cart.Items); err != nil {
		return nil, fmt.Errorf("decode cart %s: %w", customerID, err)
	}

	return cart, nil
}
