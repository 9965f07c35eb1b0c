package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-grocery/internal/payment/domain"
	"github.com/sakashimaa/go-grocery/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewPostgresRepository(pool *pgxpool.Pool, logger *zap.Logger) *PostgresRepository {
	return &PostgresRepository{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("payment/repository"),
	}
}

func (r *PostgresRepository) Create(ctx context.Context, payment *domain.Payment) error {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("payment_id", payment.ID),
		attribute.String("order_id", payment.OrderID),
	)

	doc, err := json.Marshal(payment)
	if err != nil {
		return fmt.Errorf("encode payment: %w", err)
	}

	query := `
		INSERT INTO payments (id, order_id, payer_id, status, transaction_id, version, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)
	`

	_, err = r.pool.Exec(
		ctx,
		query,
		payment.ID,
		payment.OrderID,
		payment.PayerID,
		payment.Status,
		payment.TransactionID,
		payment.Version,
		doc,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			mylogger.Info(ctx, r.logger, "Payment already exists for order", zap.String("order_id", payment.OrderID))
			return domain.ErrDuplicatePayment
		}

		span.RecordError(err)
		return fmt.Errorf("insert payment: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.GetByID")
	defer span.End()

	span.SetAttributes(attribute.String("payment_id", id))

	return r.getOne(ctx, span, `SELECT document FROM payments WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.GetByOrderID")
	defer span.End()

	span.SetAttributes(attribute.String("order_id", orderID))

	return r.getOne(ctx, span, `SELECT document FROM payments WHERE order_id = $1`, orderID)
}

func (r *PostgresRepository) getOne(ctx context.Context, span trace.Span, query string, arg string) (*domain.Payment, error) {
	var raw []byte
	if err := r.pool.QueryRow(ctx, query, arg).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}

		span.RecordError(err)
		return nil, fmt.Errorf("get payment: %w", err)
	}

	var payment domain.Payment
	if err := json.Unmarshal(raw, &payment); err != nil {
		return nil, fmt.Errorf("decode payment: %w", err)
	}

	return &payment, nil
}

func (r *PostgresRepository) Update(ctx context.Context, payment *domain.Payment) error {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.Update")
	defer span.End()

	span.SetAttributes(
		attribute.String("payment_id", payment.ID),
		attribute.String("status", string(payment.Status)),
	)

	next := *payment
	next.Version = payment.Version + 1

	doc, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode payment: %w", err)
	}

	query := `
		UPDATE payments
		SET status = $3,
			transaction_id = NULLIF($4, ''),
			version = $5,
			document = $6,
			updated_at = $7
		WHERE id = $1 AND version = $2
	`

	tag, err := r.pool.Exec(ctx, query, payment.ID, payment.Version, next.Status, next.TransactionID, next.Version, doc, next.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("update payment %s: %w", payment.ID, err)
	}

	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, payment.ID); err != nil {
			return err
		}
		return domain.ErrVersionConflict
	}

	payment.Version = next.Version
	return nil
}

func (r *PostgresRepository) ListByPayer(ctx context.Context, payerID string) ([]domain.Payment, error) {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.ListByPayer")
	defer span.End()

	span.SetAttributes(attribute.String("payer_id", payerID))

	query := `
		SELECT document
		FROM payments
		WHERE payer_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.pool.Query(ctx, query, payerID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	var result []domain.Payment
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}

		var payment domain.Payment
		if err := json.Unmarshal(raw, &payment); err != nil {
			return nil, fmt.Errorf("decode payment: %w", err)
		}

		result = append(result, payment)
	}

	return result, rows.Err()
}
