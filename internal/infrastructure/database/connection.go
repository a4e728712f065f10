// Package database manages the postgres connection pool.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/shiftsentry/attendance-backend/internal/infrastructure/config"
)

// Pool wraps a pgx pool with the service's query timeout policy.
type Pool struct {
	*pgxpool.Pool

	queryTimeout time.Duration
	logger       *zap.Logger
}

// Connect opens and pings a pool built from cfg.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.ConnMaxLifetime
	pc.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to postgres",
		zap.Int32("max_conns", pc.MaxConns),
		zap.Duration("query_timeout", cfg.QueryTimeout))

	return &Pool{Pool: pool, queryTimeout: cfg.QueryTimeout, logger: logger}, nil
}

// QueryContext returns ctx bounded by the configured per-query timeout.
func (p *Pool) QueryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.queryTimeout)
}

// Healthy reports whether the database answers a ping within the deadline.
func (p *Pool) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.Ping(ctx) == nil
}
