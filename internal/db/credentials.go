package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clipforge/scenekit/internal/models"
	"github.com/google/uuid"
)

const credentialColumns = `
	id, principal_id, kind, username, email, password_hash, code_hash,
	attempts, consumed_at, expires_at, created_at, updated_at
`

func scanCredential(row interface{ Scan(...interface{}) error }) (*models.Credential, error) {
	c := &models.Credential{}
	err := row.Scan(
		&c.ID, &c.PrincipalID, &c.Kind, &c.Username, &c.Email, &c.PasswordHash,
		&c.CodeHash, &c.Attempts, &c.ConsumedAt, &c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func (d *DB) CreateCredential(ctx context.Context, c *models.Credential) error {
	query := `
		INSERT INTO credentials (
			id, principal_id, kind, username, email, password_hash, code_hash,
			attempts, consumed_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	return d.QueryRowContext(
		ctx, query,
		c.ID, c.PrincipalID, c.Kind, c.Username, c.Email, c.PasswordHash,
		c.CodeHash, c.Attempts, c.ConsumedAt, c.ExpiresAt,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

// GetPasswordCredentialByUsername looks up a password credential by
// username for login.
func (d *DB) GetPasswordCredentialByUsername(ctx context.Context, username string) (*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE kind = 'password' AND username = $1`
	c, err := scanCredential(d.QueryRowContext(ctx, query, username))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db: get password credential: %w", err)
	}
	return c, nil
}

// MostRecentOTP returns the latest email_otp credential for email,
// regardless of consumed/expired state — used to enforce the minimum
// resend interval.
func (d *DB) MostRecentOTP(ctx context.Context, email string) (*models.Credential, error) {
	query := `
		SELECT ` + credentialColumns + ` FROM credentials
		WHERE kind = 'email_otp' AND email = $1
		ORDER BY created_at DESC LIMIT 1
	`
	c, err := scanCredential(d.QueryRowContext(ctx, query, email))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db: most recent otp: %w", err)
	}
	return c, nil
}

// UnexpiredUnconsumedOTPs returns all live OTP credentials for email, newest
// first, to verify against.
func (d *DB) UnexpiredUnconsumedOTPs(ctx context.Context, email string) ([]*models.Credential, error) {
	query := `
		SELECT ` + credentialColumns + ` FROM credentials
		WHERE kind = 'email_otp' AND email = $1 AND consumed_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC
	`
	rows, err := d.QueryContext(ctx, query, email, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("db: unexpired otps: %w", err)
	}
	defer rows.Close()

	var out []*models.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("db: scan otp: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// BumpOTPAttempts increments attempts and, once max is reached, consumes
// (burns) the row so it can no longer be matched.
func (d *DB) BumpOTPAttempts(ctx context.Context, id uuid.UUID, attempts int, consume bool) error {
	if consume {
		_, err := d.ExecContext(ctx, `
			UPDATE credentials SET attempts = $1, consumed_at = NOW(), updated_at = NOW() WHERE id = $2
		`, attempts, id)
		return err
	}
	_, err := d.ExecContext(ctx, `
		UPDATE credentials SET attempts = $1, updated_at = NOW() WHERE id = $2
	`, attempts, id)
	return err
}

// ConsumeCredential marks a credential consumed (OTP verified, or any
// single-use binding).
func (d *DB) ConsumeCredential(ctx context.Context, id uuid.UUID) error {
	_, err := d.ExecContext(ctx, `
		UPDATE credentials SET consumed_at = NOW(), updated_at = NOW() WHERE id = $1
	`, id)
	return err
}

// DeleteCredential removes a credential outright (used when OTP email
// delivery fails, so a valid code is never left around undelivered).
func (d *DB) DeleteCredential(ctx context.Context, id uuid.UUID) error {
	_, err := d.ExecContext(ctx, `DELETE FROM credentials WHERE id = $1`, id)
	return err
}
