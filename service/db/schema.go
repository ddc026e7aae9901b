package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the invocation journal.
// It is idempotent so `zerofun db setup` can be re-run safely.
const Schema = `
CREATE TABLE IF NOT EXISTS invocations (
    signature       TEXT PRIMARY KEY,
    method          TEXT NOT NULL,
    program_address TEXT NOT NULL,
    network         TEXT NOT NULL,
    payer           TEXT NOT NULL,
    status          TEXT NOT NULL,
    error           TEXT,
    slot            BIGINT,
    workflow_id     TEXT,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_invocations_method ON invocations (method, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_invocations_status ON invocations (status, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_invocations_payer ON invocations (payer, created_at DESC);
`

// EnsureSchema applies the journal schema to the connected database.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
