package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// The wallet number sequence is the atomic primitive behind wallet minting:
// nextval and the row insert happen in a single statement, so two concurrent
// mints can never observe the same number.
const ledgerSchema = `
CREATE SEQUENCE IF NOT EXISTS wallet_numbers START 1;

CREATE TABLE IF NOT EXISTS wallets (
    id            UUID PRIMARY KEY,
    number        BIGINT NOT NULL UNIQUE,
    balance       BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    is_rented     BOOLEAN NOT NULL DEFAULT FALSE,
    rental_expiry TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS wallets_free_idx ON wallets (number) WHERE NOT is_rented;
`

// The partial unique index makes "at most one user references a wallet
// number" a write-time constraint instead of a read-time convention.
const identitySchema = `
CREATE TABLE IF NOT EXISTS users (
    uid           TEXT PRIMARY KEY,
    balance       BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    rented_wallet BIGINT,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS users_rented_wallet_idx
    ON users (rented_wallet) WHERE rented_wallet IS NOT NULL;
`

// EnsureLedgerSchema applies the ledger store DDL. Statements are idempotent.
func EnsureLedgerSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ledgerSchema); err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	return nil
}

// EnsureIdentitySchema applies the identity store DDL. Statements are idempotent.
func EnsureIdentitySchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, identitySchema); err != nil {
		return fmt.Errorf("ensure identity schema: %w", err)
	}
	return nil
}
