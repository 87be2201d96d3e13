package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BumpRateLimitCounter implements the DB-backed windowed counter: insert if
// absent, reset to 1 if the existing window already expired, else
// increment. It retries once on a unique-constraint race, matching the
// reference implementation's single-retry-on-commit-failure behavior.
func (d *DB) BumpRateLimitCounter(ctx context.Context, key string, now time.Time, windowExpiry time.Time) (int, error) {
	count, err := d.bumpRateLimitCounterOnce(ctx, key, now, windowExpiry)
	if err != nil {
		return d.bumpRateLimitCounterOnce(ctx, key, now, windowExpiry)
	}
	return count, nil
}

func (d *DB) bumpRateLimitCounterOnce(ctx context.Context, key string, now, windowExpiry time.Time) (int, error) {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("db: bump rate limit: begin: %w", err)
	}
	defer tx.Rollback()

	var count int
	var expiresAt time.Time
	err = tx.QueryRowContext(ctx, `
		SELECT count, expires_at FROM rate_limit_counters WHERE key = $1 FOR UPDATE
	`, key).Scan(&count, &expiresAt)

	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rate_limit_counters (key, count, expires_at) VALUES ($1, 1, $2)
		`, key, windowExpiry); err != nil {
			return 0, fmt.Errorf("db: bump rate limit: insert: %w", err)
		}
		count = 1
	case err != nil:
		return 0, fmt.Errorf("db: bump rate limit: select: %w", err)
	case !expiresAt.After(now):
		if _, err := tx.ExecContext(ctx, `
			UPDATE rate_limit_counters SET count = 1, expires_at = $2 WHERE key = $1
		`, key, windowExpiry); err != nil {
			return 0, fmt.Errorf("db: bump rate limit: reset: %w", err)
		}
		count = 1
	default:
		count++
		if _, err := tx.ExecContext(ctx, `
			UPDATE rate_limit_counters SET count = $2 WHERE key = $1
		`, key, count); err != nil {
			return 0, fmt.Errorf("db: bump rate limit: increment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("db: bump rate limit: commit: %w", err)
	}
	return count, nil
}

// SweepExpiredRateLimitCounters deletes rows whose window has expired.
// Called from a throttled background goroutine, never inline on a request.
func (d *DB) SweepExpiredRateLimitCounters(ctx context.Context, now time.Time) (int64, error) {
	res, err := d.ExecContext(ctx, `DELETE FROM rate_limit_counters WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("db: sweep rate limits: %w", err)
	}
	return res.RowsAffected()
}
