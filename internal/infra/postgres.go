package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	poolMaxConns        = 20
	poolMinConns        = 2
	poolConnLifetime    = 30 * time.Minute
	poolConnIdleTime    = 5 * time.Minute
	poolHealthInterval  = 30 * time.Second
	healthCheckDeadline = 3 * time.Second
)

// NewPostgresPool opens a pgx pool against the configured database and
// verifies connectivity before returning it. Pool sizing is fixed; the
// wallet's write path holds short transactions, so a small pool suffices.
func NewPostgresPool(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	poolCfg.MaxConns = poolMaxConns
	poolCfg.MinConns = poolMinConns
	poolCfg.MaxConnLifetime = poolConnLifetime
	poolCfg.MaxConnIdleTime = poolConnIdleTime
	poolCfg.HealthCheckPeriod = poolHealthInterval

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// HealthCheck pings the database with a bounded deadline so a wedged
// connection cannot stall the health endpoint.
func HealthCheck(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckDeadline)
	defer cancel()
	return pool.Ping(ctx)
}
