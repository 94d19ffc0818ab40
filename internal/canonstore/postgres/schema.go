package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// DDL — canonical entities
// ─────────────────────────────────────────────────────────────────────────────

const ddlEntities = `
CREATE TABLE IF NOT EXISTS canon_entities (
    id                         TEXT         PRIMARY KEY,
    canonical_name             TEXT         NOT NULL,
    entity_type                TEXT         NOT NULL,
    classification_confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
    grouping_confidence        DOUBLE PRECISION NOT NULL DEFAULT 1,
    variations                 JSONB        NOT NULL DEFAULT '[]',
    created_at                 TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at                 TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_canon_entities_name_type
    ON canon_entities (canonical_name, entity_type);

CREATE INDEX IF NOT EXISTS idx_canon_entities_type
    ON canon_entities (entity_type);

CREATE INDEX IF NOT EXISTS idx_canon_entities_created_at
    ON canon_entities (created_at);
`

// Migrate creates or ensures the canon_entities table and its indexes exist.
// It is idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS)
// and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlEntities); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
