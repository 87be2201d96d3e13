package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clipforge/scenekit/internal/models"
	"github.com/google/uuid"
)

func (d *DB) CreateProject(ctx context.Context, p *models.Project) error {
	query := `
		INSERT INTO projects (
			id, user_prompt, pacing, total_duration_seconds, segment_duration,
			full_script, canon_summaries, current_segment_index, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	return d.QueryRowContext(
		ctx, query,
		p.ID, p.UserPrompt, p.Pacing, p.TotalDurationSeconds, p.SegmentDuration,
		p.FullScript, p.CanonSummaries, p.CurrentSegmentIndex, p.Status,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

const projectColumns = `
	id, user_prompt, pacing, total_duration_seconds, segment_duration,
	full_script, canon_summaries, current_segment_index, last_frame_path,
	final_video_path, status, error_message, created_at, updated_at
`

func scanProject(row interface{ Scan(...interface{}) error }) (*models.Project, error) {
	p := &models.Project{}
	err := row.Scan(
		&p.ID, &p.UserPrompt, &p.Pacing, &p.TotalDurationSeconds, &p.SegmentDuration,
		&p.FullScript, &p.CanonSummaries, &p.CurrentSegmentIndex, &p.LastFramePath,
		&p.FinalVideoPath, &p.Status, &p.ErrorMessage, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

// ErrNotFound is returned by Get* accessors when no row matches.
var ErrNotFound = fmt.Errorf("not found")

func (d *DB) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	p, err := scanProject(d.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db: get project: %w", err)
	}
	return p, nil
}

// GetProjectForUpdate locks the project row for the duration of tx, so
// concurrent handlers serialize around it (used by job handlers before
// mutating Project/Segment state together).
func (d *DB) GetProjectForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1 FOR UPDATE`
	p, err := scanProject(tx.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db: get project for update: %w", err)
	}
	return p, nil
}

// ListProjectsForPrincipal returns projects owned by principalID, newest
// first.
func (d *DB) ListProjectsForPrincipal(ctx context.Context, principalID string) ([]models.Project, error) {
	query := `
		SELECT ` + projectColumns + `
		FROM projects p
		JOIN project_owners o ON o.project_id = p.id
		WHERE o.principal_id = $1
		ORDER BY p.created_at DESC
	`
	rows, err := d.QueryContext(ctx, query, principalID)
	if err != nil {
		return nil, fmt.Errorf("db: list projects: %w", err)
	}
	defer rows.Close()

	var out []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("db: scan project: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ListAllProjects returns every project, newest first. Used only when
// access control resolves the caller to the anonymous principal (auth
// disabled, or not required for reads) — in that mode ownership filtering
// doesn't apply and the original behavior is to show everything.
func (d *DB) ListAllProjects(ctx context.Context) ([]models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY created_at DESC`
	rows, err := d.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db: list all projects: %w", err)
	}
	defer rows.Close()

	var out []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("db: scan project: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpdateProject persists the full mutable surface of a project in one
// statement; job handlers and HTTP handlers alike go through this so no
// write path can forget a field.
func (d *DB) UpdateProject(ctx context.Context, p *models.Project) error {
	query := `
		UPDATE projects SET
			user_prompt = $1, pacing = $2, total_duration_seconds = $3,
			segment_duration = $4, full_script = $5, canon_summaries = $6,
			current_segment_index = $7, last_frame_path = $8,
			final_video_path = $9, status = $10, error_message = $11,
			updated_at = NOW()
		WHERE id = $12
		RETURNING updated_at
	`
	return d.QueryRowContext(
		ctx, query,
		p.UserPrompt, p.Pacing, p.TotalDurationSeconds, p.SegmentDuration,
		p.FullScript, p.CanonSummaries, p.CurrentSegmentIndex, p.LastFramePath,
		p.FinalVideoPath, p.Status, p.ErrorMessage, p.ID,
	).Scan(&p.UpdatedAt)
}

// UpdateProjectTx is UpdateProject bound to an in-flight transaction.
func (d *DB) UpdateProjectTx(ctx context.Context, tx *sql.Tx, p *models.Project) error {
	query := `
		UPDATE projects SET
			user_prompt = $1, pacing = $2, total_duration_seconds = $3,
			segment_duration = $4, full_script = $5, canon_summaries = $6,
			current_segment_index = $7, last_frame_path = $8,
			final_video_path = $9, status = $10, error_message = $11,
			updated_at = NOW()
		WHERE id = $12
		RETURNING updated_at
	`
	return tx.QueryRowContext(
		ctx, query,
		p.UserPrompt, p.Pacing, p.TotalDurationSeconds, p.SegmentDuration,
		p.FullScript, p.CanonSummaries, p.CurrentSegmentIndex, p.LastFramePath,
		p.FinalVideoPath, p.Status, p.ErrorMessage, p.ID,
	).Scan(&p.UpdatedAt)
}

// CreateProjectOwner binds a project to its owning principal.
func (d *DB) CreateProjectOwner(ctx context.Context, projectID uuid.UUID, principalID string) error {
	_, err := d.ExecContext(ctx, `
		INSERT INTO project_owners (project_id, principal_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, projectID, principalID)
	return err
}

// IsOwner reports whether principalID owns projectID. Used by Access Control
// to enforce the "miss returns 404" rule.
func (d *DB) IsOwner(ctx context.Context, projectID uuid.UUID, principalID string) (bool, error) {
	var exists bool
	err := d.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM project_owners WHERE project_id = $1 AND principal_id = $2)
	`, projectID, principalID).Scan(&exists)
	return exists, err
}
