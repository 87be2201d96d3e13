package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clipforge/scenekit/internal/models"
	"github.com/google/uuid"
)

const segmentColumns = `
	project_id, index, segment_script, video_prompt, video_path,
	video_description, last_frame_path, status, created_at, updated_at
`

func scanSegment(row interface{ Scan(...interface{}) error }) (*models.Segment, error) {
	s := &models.Segment{}
	err := row.Scan(
		&s.ProjectID, &s.Index, &s.SegmentScript, &s.VideoPrompt, &s.VideoPath,
		&s.VideoDescription, &s.LastFramePath, &s.Status, &s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

func (d *DB) GetSegment(ctx context.Context, projectID uuid.UUID, index int) (*models.Segment, error) {
	query := `SELECT ` + segmentColumns + ` FROM segments WHERE project_id = $1 AND index = $2`
	s, err := scanSegment(d.QueryRowContext(ctx, query, projectID, index))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db: get segment: %w", err)
	}
	return s, nil
}

// ListSegments returns every persisted segment for a project, indexed by
// Segment.Index.
func (d *DB) ListSegments(ctx context.Context, projectID uuid.UUID) (map[int]*models.Segment, error) {
	query := `SELECT ` + segmentColumns + ` FROM segments WHERE project_id = $1`
	rows, err := d.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("db: list segments: %w", err)
	}
	defer rows.Close()

	out := make(map[int]*models.Segment)
	for rows.Next() {
		s, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("db: scan segment: %w", err)
		}
		out[s.Index] = s
	}
	return out, rows.Err()
}

func (d *DB) ListSegmentsTx(ctx context.Context, tx *sql.Tx, projectID uuid.UUID) (map[int]*models.Segment, error) {
	query := `SELECT ` + segmentColumns + ` FROM segments WHERE project_id = $1`
	rows, err := tx.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("db: list segments tx: %w", err)
	}
	defer rows.Close()

	out := make(map[int]*models.Segment)
	for rows.Next() {
		s, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("db: scan segment: %w", err)
		}
		out[s.Index] = s
	}
	return out, rows.Err()
}

// UpsertSegment inserts or replaces the segment row at (project_id, index).
func (d *DB) UpsertSegment(ctx context.Context, s *models.Segment) error {
	return d.upsertSegment(ctx, d.DB, s)
}

func (d *DB) UpsertSegmentTx(ctx context.Context, tx *sql.Tx, s *models.Segment) error {
	return d.upsertSegment(ctx, tx, s)
}

type execContext interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (d *DB) upsertSegment(ctx context.Context, ex execContext, s *models.Segment) error {
	query := `
		INSERT INTO segments (
			project_id, index, segment_script, video_prompt, video_path,
			video_description, last_frame_path, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (project_id, index) DO UPDATE SET
			segment_script = EXCLUDED.segment_script,
			video_prompt = EXCLUDED.video_prompt,
			video_path = EXCLUDED.video_path,
			video_description = EXCLUDED.video_description,
			last_frame_path = EXCLUDED.last_frame_path,
			status = EXCLUDED.status,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`
	return ex.QueryRowContext(
		ctx, query,
		s.ProjectID, s.Index, s.SegmentScript, s.VideoPrompt, s.VideoPath,
		s.VideoDescription, s.LastFramePath, s.Status,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

// DeleteSegmentsFrom removes every segment at index >= from. No route or
// job handler in this server calls it.
func (d *DB) DeleteSegmentsFrom(ctx context.Context, projectID uuid.UUID, from int) error {
	_, err := d.ExecContext(ctx, `DELETE FROM segments WHERE project_id = $1 AND index >= $2`, projectID, from)
	return err
}
