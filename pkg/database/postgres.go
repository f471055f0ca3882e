package database

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rest/pkg/logging"
	"github.com/ekaya-inc/ekaya-rest/pkg/retry"
)

// DB is the pgx pool every statement executor draws from.
type DB struct {
	*pgxpool.Pool
}

// Pool defaults applied when Config leaves a field zero.
const (
	defaultMaxConns        = 25
	defaultMaxConnLifetime = time.Hour
	defaultMaxConnIdleTime = 30 * time.Minute
)

// Config describes the pool. Zero durations and MaxConnections fall back to
// the defaults above.
type Config struct {
	URL             string
	MaxConnections  int32
	MinConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// Retry controls how startup waits for the database. Nil uses
	// retry.DefaultConfig.
	Retry *retry.Config

	// Logger receives a warning per retried ping. Nil disables it.
	Logger *zap.Logger
}

// NewConnection opens the pool and pings it, waiting out a database that is
// still starting. The pool is closed again if the ping never succeeds.
func NewConnection(ctx context.Context, cfg *Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = cmp.Or(cfg.MaxConnections, defaultMaxConns)
	poolConfig.MinConns = cfg.MinConnections
	poolConfig.MaxConnLifetime = cmp.Or(cfg.MaxConnLifetime, defaultMaxConnLifetime)
	poolConfig.MaxConnIdleTime = cmp.Or(cfg.MaxConnIdleTime, defaultMaxConnIdleTime)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := retry.DoIfRetryable(ctx, pingRetry(cfg), func() error { return pool.Ping(ctx) }); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func pingRetry(cfg *Config) *retry.Config {
	rc := retry.DefaultConfig()
	if cfg.Retry != nil {
		c := *cfg.Retry
		rc = &c
	}
	if cfg.Logger != nil && rc.OnRetry == nil {
		logger := cfg.Logger
		rc.OnRetry = func(attempt int, err error, wait time.Duration) {
			kind, _ := retry.Classify(err)
			logger.Warn("Database not reachable yet, retrying",
				zap.Int("attempt", attempt),
				zap.String("kind", kind),
				zap.Duration("wait", wait),
				zap.String("error", logging.SanitizeError(err)))
		}
	}
	return rc
}

// SQLDB returns a database/sql handle sharing this pool. Closing it does
// not close the pool.
func (db *DB) SQLDB() *sql.DB {
	return stdlib.OpenDBFromPool(db.Pool)
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
