// Package models defines the persisted entities of the production pipeline.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// JSONB stores arbitrary structured data in a jsonb column.
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = JSONB{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("models: JSONB.Scan: unsupported type")
	}
	if len(bytes) == 0 {
		*j = JSONB{}
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// Pacing controls how a screenplay is instructed to move.
type Pacing string

const (
	PacingNormal Pacing = "normal"
	PacingSlow   Pacing = "slow"
	PacingUrgent Pacing = "urgent"
)

// ProjectStatus is a coarse lifecycle marker, derived informationally from
// segment/job state rather than separately machine-driven.
type ProjectStatus string

const (
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusFailed    ProjectStatus = "failed"
)

// Project is the top-level production unit: one screenplay, N segments, one
// final assembled video.
type Project struct {
	ID                    uuid.UUID
	UserPrompt            string
	Pacing                Pacing
	TotalDurationSeconds  int
	SegmentDuration       int
	FullScript            string
	CanonSummaries        string
	CurrentSegmentIndex   int
	LastFramePath         *string
	FinalVideoPath        *string
	Status                ProjectStatus
	ErrorMessage          *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// TotalSegments returns ⌈TotalDurationSeconds / SegmentDuration⌉.
func (p *Project) TotalSegments() int {
	if p.SegmentDuration <= 0 {
		return 0
	}
	return (p.TotalDurationSeconds + p.SegmentDuration - 1) / p.SegmentDuration
}

// TimeRange returns the [start, end) second offsets covered by segment index.
func (p *Project) TimeRange(index int) (int, int) {
	start := index * p.SegmentDuration
	end := start + p.SegmentDuration
	if end > p.TotalDurationSeconds {
		end = p.TotalDurationSeconds
	}
	return start, end
}

// SegmentStatus is the per-segment lifecycle state (spec.md §3).
type SegmentStatus string

const (
	SegmentStatusPending      SegmentStatus = "pending"
	SegmentStatusScriptReady  SegmentStatus = "script_ready"
	SegmentStatusWaitingVideo SegmentStatus = "waiting_video"
	SegmentStatusAnalyzing    SegmentStatus = "analyzing"
	SegmentStatusCompleted    SegmentStatus = "completed"
	SegmentStatusFailed       SegmentStatus = "failed"
)

// Segment is one fixed-duration slice of the production (project_id, index).
type Segment struct {
	ProjectID        uuid.UUID
	Index            int
	SegmentScript    string
	VideoPrompt      string
	VideoPath        *string
	VideoDescription *string
	LastFramePath    *string
	Status           SegmentStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// JobType enumerates the asynchronous work a job can carry out.
type JobType string

const (
	JobTypeFullScript      JobType = "full_script"
	JobTypeSegmentGenerate JobType = "segment_generate"
	JobTypeExtractFrame    JobType = "extract_frame"
	JobTypeAnalyze         JobType = "analyze"
	JobTypeAssemble        JobType = "assemble"
)

// JobStatus is the lifecycle of a queued unit of work.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// Job is a persisted, asynchronously executed unit of work tied to a project.
type Job struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	Type      JobType
	Status    JobStatus
	Progress  int
	Message   string
	Payload   JSONB
	Result    JSONB
	Error     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UIMessage returns a new result map holding only the localization-ready
// message envelope under "ui_message"; merging it into an existing result
// is left to the caller.
func UIMessage(key string, params map[string]interface{}) JSONB {
	msg := map[string]interface{}{"key": key}
	if len(params) > 0 {
		msg["params"] = params
	}
	return JSONB{"ui_message": msg}
}

// Principal is the authenticated identity that owns projects and sessions.
// It is not persisted directly; it is resolved from Session/Credential rows.
type Principal struct {
	ID    string
	Email string
}

// Session is an opaque bearer token bound to a principal.
type Session struct {
	ID          uuid.UUID
	PrincipalID string
	TokenHash   string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	RevokedAt   *time.Time
	LastSeenAt  time.Time
}

// CredentialKind distinguishes identity-binding records.
type CredentialKind string

const (
	CredentialKindPassword CredentialKind = "password"
	CredentialKindEmailOTP CredentialKind = "email_otp"
)

// Credential is an identity binding for a principal. Raw secrets are never
// persisted — only derived hashes.
type Credential struct {
	ID           uuid.UUID
	PrincipalID  string
	Kind         CredentialKind
	Username     *string
	Email        *string
	PasswordHash *string
	CodeHash     *string
	Attempts     int
	ConsumedAt   *time.Time
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// InviteCode gates registration. Redemption must be a conditional UPDATE
// that affects exactly one row.
type InviteCode struct {
	Code             string
	ParentCode       *string
	OwnerPrincipalID *string
	RedeemedBy       *string
	RedeemedAt       *time.Time
	DisabledAt       *time.Time
	CreatedAt        time.Time
}

// RateLimitCounter is a DB-backed windowed counter, multi-process safe.
type RateLimitCounter struct {
	Key       string
	Count     int
	ExpiresAt time.Time
}

// ProjectOwner binds a project to the principal who may read/write it.
type ProjectOwner struct {
	ProjectID   uuid.UUID
	PrincipalID string
	CreatedAt   time.Time
}
