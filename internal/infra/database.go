package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema for the ledger and deposit tables. Balances live in accounts; the
// transaction log is append-only and entries carry the signed per-account
// splits. Statements are idempotent so startup can run them unconditionally.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
        id UUID PRIMARY KEY,
        username TEXT NOT NULL,
        role TEXT NOT NULL,
        balance_cents BIGINT NOT NULL DEFAULT 0,
        version BIGINT NOT NULL DEFAULT 0,
        UNIQUE (username, role)
    )`,
	`CREATE TABLE IF NOT EXISTS transactions (
        id UUID PRIMARY KEY,
        kind TEXT NOT NULL,
        status TEXT NOT NULL,
        amount_cents BIGINT NOT NULL,
        date TIMESTAMPTZ NOT NULL,
        metadata JSONB
    )`,
	`CREATE TABLE IF NOT EXISTS entries (
        id UUID PRIMARY KEY,
        transaction_id UUID NOT NULL REFERENCES transactions(id),
        username TEXT NOT NULL,
        role TEXT NOT NULL,
        amount_cents BIGINT NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS entries_account_idx ON entries (username, role)`,
	`CREATE TABLE IF NOT EXISTS deposits (
        id UUID PRIMARY KEY,
        username TEXT NOT NULL,
        amount_cents BIGINT NOT NULL,
        currency TEXT NOT NULL,
        quoted_rate TEXT NOT NULL,
        expected_crypto_amount TEXT NOT NULL,
        wallet_address TEXT NOT NULL,
        tx_hash TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL,
        expires_at TIMESTAMPTZ NOT NULL,
        verified_amount_cents BIGINT NOT NULL DEFAULT 0,
        notes TEXT NOT NULL DEFAULT '',
        reject_reason TEXT NOT NULL DEFAULT '',
        version BIGINT NOT NULL DEFAULT 0
    )`,
	`CREATE INDEX IF NOT EXISTS deposits_status_idx ON deposits (status, created_at)`,
}

// NewPostgresPool configures a PostgreSQL connection pool sized for the
// ledger's short row-locking transactions and verifies connectivity.
func NewPostgresPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is required")
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

// Migrate applies the ledger schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
