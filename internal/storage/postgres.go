// Package storage provides the Postgres and Redis backed stores of the tracker.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/app-directory-tracker/internal/config"
	"github.com/app-directory-tracker/internal/retry"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgUniqueViolation is the SQLSTATE raised when a unique index rejects a row
const pgUniqueViolation = "23505"

// SQLSTATE classes that no amount of retrying will fix
const (
	pgClassInvalidAuthorization = "28"
	pgClassInvalidCatalogName   = "3D"
)

// PostgresDB wraps the pgxpool connection
type PostgresDB struct {
	pool *pgxpool.Pool
}

// NewPostgresDB opens a pool and pings it. The context bounds the initial connect.
func NewPostgresDB(ctx context.Context, cfg *config.PostgresConfig) (*PostgresDB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections) // #nosec G115 - MaxConnections is validated in config
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// ConnectPostgres opens the pool, retrying transient failures with exponential
// backoff so a process can start alongside its database. A nil policy uses
// retry.DefaultRetryConfig. Permanent failures are returned after one attempt.
func ConnectPostgres(ctx context.Context, cfg *config.PostgresConfig, policy *retry.RetryConfig) (*PostgresDB, error) {
	if policy == nil {
		policy = retry.DefaultRetryConfig()
	}
	connectPolicy := *policy
	connectPolicy.Retryable = IsRetryableConnectError

	var db *PostgresDB
	err := retry.WithRetry(ctx, &connectPolicy, func(ctx context.Context, attempt int) error {
		conn, err := NewPostgresDB(ctx, cfg)
		if err != nil {
			return err
		}
		db = conn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// IsRetryableConnectError reports whether a failed connect may succeed later.
// A malformed connection string, rejected credentials and an unknown database
// are permanent.
func IsRetryableConnectError(err error) bool {
	if err == nil {
		return false
	}

	var parseErr *pgconn.ParseConfigError
	if errors.As(err, &parseErr) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case pgClassInvalidAuthorization, pgClassInvalidCatalogName:
			return false
		}
	}
	return true
}

// Close closes the database connection pool
func (db *PostgresDB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Pool returns the underlying connection pool
func (db *PostgresDB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping checks if the database is reachable
func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// isUniqueViolation reports whether err is a Postgres unique constraint violation
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
