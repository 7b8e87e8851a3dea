// Package postgres stores balances and race documents in PostgreSQL using
// pgx v5. Every read-modify-write runs in one transaction holding row locks
// on the user and race rows.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/derby/internal/config"
)

const (
	applicationName = "derby"
	// lockTimeout bounds waits on FOR UPDATE row locks so a stuck
	// settlement surfaces as a retryable failure instead of a hung request.
	lockTimeout      = 3 * time.Second
	statementTimeout = 5 * time.Second
)

// Pool wraps a pgx connection pool.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPool connects to PostgreSQL and verifies the connection.
//
// Precondition: cfg must contain valid database connection parameters.
// Postcondition: Returns a connected Pool whose sessions carry the lock and
// statement timeouts, or a non-nil error.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	params := poolCfg.ConnConfig.RuntimeParams
	params["application_name"] = applicationName
	params["lock_timeout"] = strconv.FormatInt(lockTimeout.Milliseconds(), 10)
	params["statement_timeout"] = strconv.FormatInt(statementTimeout.Milliseconds(), 10)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Pool{pool: pool}, nil
}

// Health pings the database within timeout.
func (p *Pool) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.pool.Ping(ctx)
}

// Close releases all pool resources.
func (p *Pool) Close() {
	p.pool.Close()
}

// DB returns the underlying pgxpool.Pool.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}
