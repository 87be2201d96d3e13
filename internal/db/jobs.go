package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clipforge/scenekit/internal/models"
	"github.com/google/uuid"
)

const jobColumns = `
	id, project_id, type, status, progress, message, payload_json,
	result_json, error, created_at, updated_at
`

func scanJob(row interface{ Scan(...interface{}) error }) (*models.Job, error) {
	j := &models.Job{}
	err := row.Scan(
		&j.ID, &j.ProjectID, &j.Type, &j.Status, &j.Progress, &j.Message,
		&j.Payload, &j.Result, &j.Error, &j.CreatedAt, &j.UpdatedAt,
	)
	return j, err
}

// CreateJob inserts a queued job with the initial "jobmsg.queued" ui_message.
func (d *DB) CreateJob(ctx context.Context, j *models.Job) error {
	if j.Result == nil {
		j.Result = models.UIMessage("jobmsg.queued", nil)
	}
	query := `
		INSERT INTO jobs (id, project_id, type, status, progress, message, payload_json, result_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	return d.QueryRowContext(
		ctx, query,
		j.ID, j.ProjectID, j.Type, j.Status, j.Progress, j.Message, j.Payload, j.Result,
	).Scan(&j.CreatedAt, &j.UpdatedAt)
}

func (d *DB) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	j, err := scanJob(d.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db: get job: %w", err)
	}
	return j, nil
}

// ListJobs returns up to limit jobs for a project, newest first.
func (d *DB) ListJobs(ctx context.Context, projectID uuid.UUID, limit int) ([]models.Job, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE project_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := d.QueryContext(ctx, query, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("db: list jobs: %w", err)
	}
	defer rows.Close()

	var out []models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("db: scan job: %w", err)
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// NextQueuedJob returns the oldest queued job, or nil if none is pending.
func (d *DB) NextQueuedJob(ctx context.Context) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = 'queued' ORDER BY created_at ASC LIMIT 1`
	j, err := scanJob(d.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db: next queued job: %w", err)
	}
	return j, nil
}

// NextRunnableJob returns the oldest queued job whose project has no job
// currently running, or nil if none qualifies — letting a different
// project's job run while one project's job engine work is in flight.
func (d *DB) NextRunnableJob(ctx context.Context) (*models.Job, error) {
	query := `
		SELECT ` + jobColumns + ` FROM jobs j
		WHERE j.status = 'queued'
		  AND NOT EXISTS (
		  	SELECT 1 FROM jobs r WHERE r.project_id = j.project_id AND r.status = 'running'
		  )
		ORDER BY j.created_at ASC
		LIMIT 1
	`
	j, err := scanJob(d.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db: next runnable job: %w", err)
	}
	return j, nil
}

// HasRunningJobForProject reports whether any job for projectID is running,
// enforcing the single-running-job-per-project invariant.
func (d *DB) HasRunningJobForProject(ctx context.Context, projectID uuid.UUID) (bool, error) {
	var exists bool
	err := d.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM jobs WHERE project_id = $1 AND status = 'running')
	`, projectID).Scan(&exists)
	return exists, err
}

// SetJob persists a status/progress/message/error/result transition for a
// job, merging result into the existing result_json rather than overwriting
// it, matching the reference worker loop's _set_job semantics.
func (d *DB) SetJob(ctx context.Context, id uuid.UUID, status models.JobStatus, progress *int, message string, errStr *string, result models.JSONB) error {
	existing, err := d.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("db: set job: load existing: %w", err)
	}

	merged := existing.Result
	if merged == nil {
		merged = models.JSONB{}
	}
	for k, v := range result {
		merged[k] = v
	}

	newProgress := existing.Progress
	if progress != nil {
		newProgress = *progress
	}

	query := `
		UPDATE jobs SET status = $1, progress = $2, message = $3, error = $4,
			result_json = $5, updated_at = NOW()
		WHERE id = $6
	`
	_, err = d.ExecContext(ctx, query, status, newProgress, message, errStr, merged, id)
	return err
}

// TryStartJob atomically transitions a queued job to running, returning
// false if it was no longer queued (lost a race with another worker loop,
// in this process or another one).
func (d *DB) TryStartJob(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := d.ExecContext(ctx, `
		UPDATE jobs SET status = 'running', progress = 1, message = 'running',
			error = NULL, result_json = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'queued'
	`, id, models.UIMessage("jobmsg.running", nil))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
