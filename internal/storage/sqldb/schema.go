package sqldb

import (
	"context"

	"github.com/pkg/errors"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS wallets (
		account_id      TEXT PRIMARY KEY,
		safe_balance    NUMERIC(18,2) NOT NULL DEFAULT 0 CHECK (safe_balance >= 0),
		trading_balance NUMERIC(18,2) NOT NULL DEFAULT 0 CHECK (trading_balance >= 0),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id         BIGSERIAL PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES wallets(account_id),
		reference  TEXT NOT NULL,
		amount     NUMERIC(18,2) NOT NULL,
		fee        NUMERIC(18,2) NOT NULL DEFAULT 0,
		kind       TEXT NOT NULL,
		status     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS transactions_reference_key ON transactions (reference)`,
	`CREATE INDEX IF NOT EXISTS transactions_account_created_idx ON transactions (account_id, created_at DESC)`,
}

// sqlite stores decimals as TEXT so values round-trip exactly
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS wallets (
		account_id      TEXT PRIMARY KEY,
		safe_balance    TEXT NOT NULL DEFAULT '0',
		trading_balance TEXT NOT NULL DEFAULT '0',
		updated_at      TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id TEXT NOT NULL REFERENCES wallets(account_id),
		reference  TEXT NOT NULL,
		amount     TEXT NOT NULL,
		fee        TEXT NOT NULL DEFAULT '0',
		kind       TEXT NOT NULL,
		status     TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS transactions_reference_key ON transactions (reference)`,
	`CREATE INDEX IF NOT EXISTS transactions_account_created_idx ON transactions (account_id, created_at)`,
}

// Migrate creates the wallets and transactions tables if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	stmts := postgresSchema
	if db.dialect == SQLite {
		stmts = sqliteSchema
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "apply schema")
		}
	}
	return nil
}
