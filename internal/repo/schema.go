package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    dropbox_id TEXT PRIMARY KEY,
    display_name TEXT,
    active BOOLEAN NOT NULL DEFAULT FALSE,
    added_bookmarklet BOOLEAN NOT NULL DEFAULT FALSE,
    emailer TEXT NOT NULL DEFAULT '',
    access_token TEXT,
    cursor TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS delivery_addresses (
    id BIGSERIAL PRIMARY KEY,
    dropbox_id TEXT NOT NULL REFERENCES accounts(dropbox_id) ON DELETE CASCADE,
    local_part TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_delivery_addresses_dropbox ON delivery_addresses(dropbox_id);
`

// Migrate applies the schema. Statements are idempotent so this runs on
// every startup.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
