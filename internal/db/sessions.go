package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clipforge/scenekit/internal/models"
	"github.com/google/uuid"
)

func (d *DB) CreateSession(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO auth_sessions (id, principal_id, token_hash, expires_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	return d.QueryRowContext(ctx, query, s.ID, s.PrincipalID, s.TokenHash, s.ExpiresAt, s.LastSeenAt).Scan(&s.CreatedAt)
}

func scanSession(row interface{ Scan(...interface{}) error }) (*models.Session, error) {
	s := &models.Session{}
	err := row.Scan(&s.ID, &s.PrincipalID, &s.TokenHash, &s.CreatedAt, &s.ExpiresAt, &s.RevokedAt, &s.LastSeenAt)
	return s, err
}

const sessionColumns = `id, principal_id, token_hash, created_at, expires_at, revoked_at, last_seen_at`

// GetSessionByTokenHash returns a live (unexpired, unrevoked) session.
func (d *DB) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + ` FROM auth_sessions
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > $2
	`
	s, err := scanSession(d.QueryRowContext(ctx, query, tokenHash, time.Now().UTC()))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db: get session: %w", err)
	}
	return s, nil
}

func (d *DB) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM auth_sessions WHERE id = $1`
	s, err := scanSession(d.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db: get session: %w", err)
	}
	return s, nil
}

// TouchSession bumps last_seen_at, best-effort (callers swallow the error).
func (d *DB) TouchSession(ctx context.Context, id uuid.UUID) error {
	_, err := d.ExecContext(ctx, `UPDATE auth_sessions SET last_seen_at = NOW() WHERE id = $1`, id)
	return err
}

// RevokeSession marks a session revoked if it is not already.
func (d *DB) RevokeSession(ctx context.Context, id uuid.UUID) error {
	_, err := d.ExecContext(ctx, `
		UPDATE auth_sessions SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL
	`, id)
	return err
}
