package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema holds the domain tables. Statements are idempotent so migrate can
// run on every deploy.
const Schema = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS leads (
	id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name       TEXT NOT NULL,
	email      TEXT,
	phone      TEXT,
	status     TEXT NOT NULL DEFAULT 'new' CHECK (status IN ('new', 'contacted', 'replied', 'engaged')),
	metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK (email IS NOT NULL OR phone IS NOT NULL)
);

CREATE TABLE IF NOT EXISTS messages (
	id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	lead_id    UUID NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	channel    TEXT NOT NULL CHECK (channel IN ('email', 'chat', 'voice', 'professional_network', 'ads')),
	direction  TEXT NOT NULL CHECK (direction IN ('inbound', 'outbound')),
	content    TEXT NOT NULL,
	status     TEXT NOT NULL CHECK (status IN ('queued', 'sent', 'failed', 'delivered')),
	error      TEXT,
	sent_at    TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS messages_lead_created_idx ON messages (lead_id, created_at DESC);

CREATE TABLE IF NOT EXISTS jobs (
	id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	lead_id      UUID NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	queue_job_id UUID,
	job_name     TEXT NOT NULL,
	status       TEXT NOT NULL CHECK (status IN ('active', 'completed', 'failed', 'retry')),
	attempts     INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 3,
	error        TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS jobs_lead_created_idx ON jobs (lead_id, created_at DESC);

CREATE TABLE IF NOT EXISTS events (
	id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	lead_id    UUID NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	event_type TEXT NOT NULL CHECK (event_type IN ('lead_created', 'lead_status_changed', 'message_queued',
		'message_sent', 'message_failed', 'reply_received', 'ai_reply_generated')),
	payload    JSONB NOT NULL DEFAULT '{}'::jsonb,
	timestamp  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS events_lead_timestamp_idx ON events (lead_id, timestamp DESC);
`

func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate domain tables: %w", err)
	}
	return nil
}
