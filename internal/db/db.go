// Package db wraps raw SQL access to the relational store behind the
// pipeline: Project, Segment, Job, Session, Credential, InviteCode,
// RateLimitCounter, and ProjectOwner.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DB embeds *sql.DB so every accessor file can call QueryRowContext /
// ExecContext / QueryContext directly on it.
type DB struct {
	*sql.DB
}

// New opens a Postgres connection pool and verifies connectivity.
func New(databaseURL string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}

	return &DB{DB: sqlDB}, nil
}

// Migrate creates every table the pipeline needs if it does not already
// exist. It is intentionally idempotent and additive — there is no
// down-migration path, matching the rest of the ecosystem's "filesystem is
// derivable, DB is authoritative, schema evolves forward only" posture.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range migrationStatements {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("db: migrate: %w", err)
		}
	}
	return nil
}

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id UUID PRIMARY KEY,
		user_prompt TEXT NOT NULL,
		pacing TEXT NOT NULL DEFAULT 'normal',
		total_duration_seconds INT NOT NULL,
		segment_duration INT NOT NULL DEFAULT 15,
		full_script TEXT NOT NULL DEFAULT '',
		canon_summaries TEXT NOT NULL DEFAULT '',
		current_segment_index INT NOT NULL DEFAULT 0,
		last_frame_path TEXT,
		final_video_path TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS segments (
		project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		index INT NOT NULL,
		segment_script TEXT NOT NULL DEFAULT '',
		video_prompt TEXT NOT NULL DEFAULT '',
		video_path TEXT,
		video_description TEXT,
		last_frame_path TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (project_id, index)
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id UUID PRIMARY KEY,
		project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'queued',
		progress INT NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		payload_json JSONB NOT NULL DEFAULT '{}',
		result_json JSONB NOT NULL DEFAULT '{}',
		error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_project_status ON jobs(project_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at)`,
	`CREATE TABLE IF NOT EXISTS project_owners (
		project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		principal_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (project_id, principal_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_project_owners_principal ON project_owners(principal_id)`,
	`CREATE TABLE IF NOT EXISTS auth_sessions (
		id UUID PRIMARY KEY,
		principal_id TEXT NOT NULL,
		token_hash TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ NOT NULL,
		revoked_at TIMESTAMPTZ,
		last_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS credentials (
		id UUID PRIMARY KEY,
		principal_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		username TEXT,
		email TEXT,
		password_hash TEXT,
		code_hash TEXT,
		attempts INT NOT NULL DEFAULT 0,
		consumed_at TIMESTAMPTZ,
		expires_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_credentials_email ON credentials(email, kind, created_at DESC)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_credentials_username ON credentials(username) WHERE kind = 'password'`,
	`CREATE TABLE IF NOT EXISTS invite_codes (
		code TEXT PRIMARY KEY,
		parent_code TEXT,
		owner_principal_id TEXT,
		redeemed_by TEXT,
		redeemed_at TIMESTAMPTZ,
		disabled_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS rate_limit_counters (
		key TEXT PRIMARY KEY,
		count INT NOT NULL DEFAULT 0,
		expires_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rate_limit_expires ON rate_limit_counters(expires_at)`,
}
