package db

import (
	"context"
	"fmt"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PoolSettings sizes the pool. Zero values fall back to the defaults below.
type PoolSettings struct {
	MaxConns       int32
	MinConns       int32
	MaxConnIdle    time.Duration
	ConnectTimeout time.Duration
}

func (s PoolSettings) withDefaults() PoolSettings {
	if s.MaxConns <= 0 {
		s.MaxConns = 10
	}
	if s.MinConns <= 0 || s.MinConns > s.MaxConns {
		s.MinConns = min(2, s.MaxConns)
	}
	if s.MaxConnIdle <= 0 {
		s.MaxConnIdle = 15 * time.Minute
	}
	if s.ConnectTimeout <= 0 {
		s.ConnectTimeout = 5 * time.Second
	}
	return s
}

// NewPostgresDB opens a traced pool and fails fast when the database is unreachable.
func NewPostgresDB(ctx context.Context, url string, settings PoolSettings, logger *zap.Logger) (*pgxpool.Pool, error) {
	settings = settings.withDefaults()

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}

	cfg.MaxConns = settings.MaxConns
	cfg.MinConns = settings.MinConns
	cfg.MaxConnIdleTime = settings.MaxConnIdle
	cfg.ConnConfig.Tracer = otelpgx.NewTracer(otelpgx.WithIncludeQueryParameters())

	dialCtx, cancel := context.WithTimeout(ctx, settings.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(dialCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Info("Postgres pool ready",
		zap.String("host", cfg.ConnConfig.Host),
		zap.String("database", cfg.ConnConfig.Database),
		zap.Int32("max_conns", cfg.MaxConns),
		zap.Int32("min_conns", cfg.MinConns),
	)

	return pool, nil
}
