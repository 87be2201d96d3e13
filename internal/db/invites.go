package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clipforge/scenekit/internal/models"
)

func scanInvite(row interface{ Scan(...interface{}) error }) (*models.InviteCode, error) {
	i := &models.InviteCode{}
	err := row.Scan(&i.Code, &i.ParentCode, &i.OwnerPrincipalID, &i.RedeemedBy, &i.RedeemedAt, &i.DisabledAt, &i.CreatedAt)
	return i, err
}

func (d *DB) CreateInviteCode(ctx context.Context, code string, ownerPrincipalID *string, parentCode *string) error {
	_, err := d.ExecContext(ctx, `
		INSERT INTO invite_codes (code, owner_principal_id, parent_code) VALUES ($1, $2, $3)
	`, code, ownerPrincipalID, parentCode)
	return err
}

func (d *DB) GetInviteCode(ctx context.Context, code string) (*models.InviteCode, error) {
	query := `SELECT code, parent_code, owner_principal_id, redeemed_by, redeemed_at, disabled_at, created_at FROM invite_codes WHERE code = $1`
	i, err := scanInvite(d.QueryRowContext(ctx, query, code))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db: get invite: %w", err)
	}
	return i, nil
}

// RedeemInviteCode performs the mandatory conditional-UPDATE redemption: it
// succeeds (returns true) only when exactly one row, matching the
// unredeemed/undisabled predicate, was updated.
func (d *DB) RedeemInviteCode(ctx context.Context, code, principalID string) (bool, error) {
	res, err := d.ExecContext(ctx, `
		UPDATE invite_codes SET redeemed_by = $1, redeemed_at = NOW()
		WHERE code = $2 AND redeemed_by IS NULL AND disabled_at IS NULL
	`, principalID, code)
	if err != nil {
		return false, fmt.Errorf("db: redeem invite: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ListUnredeemedInvites returns an owner's still-usable invite codes.
func (d *DB) ListUnredeemedInvites(ctx context.Context, ownerPrincipalID string) ([]*models.InviteCode, error) {
	query := `
		SELECT code, parent_code, owner_principal_id, redeemed_by, redeemed_at, disabled_at, created_at
		FROM invite_codes
		WHERE owner_principal_id = $1 AND redeemed_by IS NULL AND disabled_at IS NULL
		ORDER BY created_at ASC
	`
	rows, err := d.QueryContext(ctx, query, ownerPrincipalID)
	if err != nil {
		return nil, fmt.Errorf("db: list invites: %w", err)
	}
	defer rows.Close()

	var out []*models.InviteCode
	for rows.Next() {
		i, err := scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("db: scan invite: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}
