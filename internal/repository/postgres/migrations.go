package postgres

import (
	"context"

	"oipulse/pkg/errors"
)

// Schema holds the DDL for all tables the service owns.
// Applied idempotently at startup.
const Schema = `
CREATE TABLE IF NOT EXISTS subscribers (
	id                 UUID PRIMARY KEY,
	telegram_id        BIGINT NOT NULL UNIQUE,
	chat_id            BIGINT NOT NULL,
	settings           JSONB NOT NULL DEFAULT '{}',
	monitoring_enabled BOOLEAN NOT NULL DEFAULT FALSE,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS oi_snapshots (
	id            BIGSERIAL PRIMARY KEY,
	symbol        TEXT NOT NULL,
	exchange      TEXT NOT NULL,
	open_interest DOUBLE PRECISION NOT NULL CHECK (open_interest >= 0),
	captured_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_oi_snapshots_lookup
	ON oi_snapshots (symbol, exchange, captured_at DESC);

CREATE TABLE IF NOT EXISTS alerts (
	id            BIGSERIAL PRIMARY KEY,
	subscriber_id UUID NOT NULL REFERENCES subscribers(id),
	kind          TEXT NOT NULL,
	symbol        TEXT NOT NULL,
	message       TEXT NOT NULL,
	value         DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_alerts_subscriber
	ON alerts (subscriber_id, created_at DESC);

CREATE TABLE IF NOT EXISTS catalog_cache (
	id           SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	data         JSONB NOT NULL,
	last_updated TIMESTAMPTZ NOT NULL
);
`

// Migrate applies the schema
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return errors.Wrap(err, "failed to apply schema")
	}
	return nil
}
