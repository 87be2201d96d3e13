package jobengine

import (
	"context"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/clipforge/scenekit/internal/db"
	"github.com/clipforge/scenekit/internal/models"
	"github.com/clipforge/scenekit/internal/storage"
	"github.com/google/uuid"
)

type fakeTextChat struct {
	reply string
	err   error
}

func (f *fakeTextChat) Chat(ctx context.Context, system, user string) (string, error) {
	return f.reply, f.err
}

type fakeImageChat struct {
	reply string
	err   error
}

func (f *fakeImageChat) ChatWithImage(ctx context.Context, system, user, imagePath string) (string, error) {
	return f.reply, f.err
}

func newTestEngine(t *testing.T, text *fakeTextChat, image *fakeImageChat) (*Engine, sqlmock.Sqlmock, *storage.Layout) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	layout, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}

	return &Engine{
		db:         &db.DB{DB: sqlDB},
		layout:     layout,
		text:       text,
		image:      image,
		concatMode: "auto",
		renderSem:  make(chan struct{}, 1),
		llmSem:     make(chan struct{}, 1),
	}, mock, layout
}

func projectRowsFor(id uuid.UUID) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "user_prompt", "pacing", "total_duration_seconds", "segment_duration",
		"full_script", "canon_summaries", "current_segment_index", "last_frame_path",
		"final_video_path", "status", "error_message", "created_at", "updated_at",
	}).AddRow(id, "a prompt", "normal", 30, 15, "", "", 0, nil, nil, "active", nil, now, now)
}

func emptySegmentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"project_id", "index", "segment_script", "video_prompt", "video_path",
		"video_description", "last_frame_path", "status", "created_at", "updated_at",
	})
}

func TestRunFullScriptPersistsScriptAndWritesFile(t *testing.T) {
	projectID := uuid.New()
	jobID := uuid.New()
	text := &fakeTextChat{reply: "FULL_SCRIPT"}
	engine, mock, layout := newTestEngine(t, text, nil)

	job := &models.Job{ID: jobID, ProjectID: projectID, Type: models.JobTypeFullScript, Payload: models.JSONB{}}

	mock.ExpectQuery(regexp.QuoteMeta("FROM projects WHERE id = $1")).WithArgs(projectID).WillReturnRows(projectRowsFor(projectID))
	mock.ExpectQuery(regexp.QuoteMeta("FROM segments WHERE project_id = $1")).WithArgs(projectID).WillReturnRows(emptySegmentRows())
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE projects SET")).WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

	result, err := engine.runFullScript(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["full_script"] != "FULL_SCRIPT" {
		t.Fatalf("unexpected result: %+v", result)
	}

	written, err := os.ReadFile(layout.FullScriptPath(projectID))
	if err != nil {
		t.Fatalf("expected full_script.txt to be written: %v", err)
	}
	if string(written) != "FULL_SCRIPT" {
		t.Fatalf("unexpected file contents: %q", written)
	}
}

func TestRunFullScriptRejectsEmptyLLMReply(t *testing.T) {
	projectID := uuid.New()
	text := &fakeTextChat{reply: "   "}
	engine, mock, _ := newTestEngine(t, text, nil)

	job := &models.Job{ID: uuid.New(), ProjectID: projectID, Type: models.JobTypeFullScript, Payload: models.JSONB{}}
	mock.ExpectQuery(regexp.QuoteMeta("FROM projects WHERE id = $1")).WithArgs(projectID).WillReturnRows(projectRowsFor(projectID))
	mock.ExpectQuery(regexp.QuoteMeta("FROM segments WHERE project_id = $1")).WithArgs(projectID).WillReturnRows(emptySegmentRows())

	if _, err := engine.runFullScript(context.Background(), job); err == nil {
		t.Fatal("expected error on empty llm reply")
	}
}

func TestRunAssembleFailsWhenSegmentsMissingVideo(t *testing.T) {
	projectID := uuid.New()
	engine, mock, _ := newTestEngine(t, nil, nil)

	job := &models.Job{ID: uuid.New(), ProjectID: projectID, Type: models.JobTypeAssemble, Payload: models.JSONB{}}
	mock.ExpectQuery(regexp.QuoteMeta("FROM projects WHERE id = $1")).WithArgs(projectID).WillReturnRows(projectRowsFor(projectID))
	mock.ExpectQuery(regexp.QuoteMeta("FROM segments WHERE project_id = $1")).WithArgs(projectID).WillReturnRows(emptySegmentRows())

	if _, err := engine.runAssemble(context.Background(), job); err == nil {
		t.Fatal("expected error when segments lack video")
	}
}

func TestNewJobContextParsesPayload(t *testing.T) {
	job := &models.Job{
		ProjectID: uuid.New(),
		Payload:   models.JSONB{"index": float64(2), "locale": "en", "feedback": "  make it punchier  "},
	}
	jc := newJobContext(job)
	if !jc.HasIndex || jc.Index != 2 {
		t.Fatalf("expected index 2, got %+v", jc)
	}
	if jc.Locale != "en" {
		t.Fatalf("expected locale en, got %q", jc.Locale)
	}
	if jc.Feedback != "make it punchier" {
		t.Fatalf("expected trimmed feedback, got %q", jc.Feedback)
	}
}

func TestNewJobContextWithoutIndex(t *testing.T) {
	job := &models.Job{ProjectID: uuid.New(), Payload: models.JSONB{}}
	jc := newJobContext(job)
	if jc.HasIndex {
		t.Fatalf("expected no index, got %+v", jc)
	}
}

func TestRunDispatchesUnknownJobType(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil, nil)
	job := &models.Job{ID: uuid.New(), ProjectID: uuid.New(), Type: models.JobType("bogus"), Payload: models.JSONB{}}
	if _, err := engine.run(context.Background(), job); err == nil {
		t.Fatal("expected error for unknown job type")
	}
}
