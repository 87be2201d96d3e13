// Package jobengine implements the single-worker-per-project job scheduler:
// a Redis-woken poll loop that dequeues the oldest runnable job, runs its
// handler to completion, and persists progress/ui_message updates as it goes.
package jobengine

import (
	"context"
	"fmt"
	"time"

	"github.com/clipforge/scenekit/internal/canon"
	"github.com/clipforge/scenekit/internal/config"
	"github.com/clipforge/scenekit/internal/db"
	"github.com/clipforge/scenekit/internal/llm"
	"github.com/clipforge/scenekit/internal/media"
	"github.com/clipforge/scenekit/internal/models"
	"github.com/clipforge/scenekit/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Engine owns every collaborator a job handler needs: persistence, the
// on-disk layout, canon helpers, the ffmpeg toolkit, and the LLM adapters.
type Engine struct {
	db         *db.DB
	layout     *storage.Layout
	media      *media.Toolkit
	text       llm.TextChat
	image      llm.ImageChat
	wake       *WakeQueue
	pollIdle   time.Duration
	concatMode media.ConcatMode

	// renderSem bounds how many ffmpeg concat/extract operations run at
	// once, mirroring the teacher's per-resource semaphore pattern so a
	// burst of assemble jobs across projects doesn't starve the box.
	renderSem chan struct{}
	llmSem    chan struct{}
}

func New(database *db.DB, layout *storage.Layout, toolkit *media.Toolkit, text llm.TextChat, image llm.ImageChat, wake *WakeQueue, cfg *config.Settings) *Engine {
	mode := media.ConcatMode(cfg.VideoConcatMode)
	return &Engine{
		db:         database,
		layout:     layout,
		media:      toolkit,
		text:       text,
		image:      image,
		wake:       wake,
		pollIdle:   500 * time.Millisecond,
		concatMode: mode,
		renderSem:  make(chan struct{}, 2),
		llmSem:     make(chan struct{}, 4),
	}
}

// Start runs concurrency independent poll loops. Each loop claims at most
// one job at a time; NextRunnableJob/TryStartJob together enforce that no
// two loops ever run jobs for the same project simultaneously.
func (e *Engine) Start(ctx context.Context, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	for i := 0; i < concurrency; i++ {
		go e.loop(ctx)
	}
	<-ctx.Done()
	log.Info().Msg("jobengine: shutting down")
}

func (e *Engine) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if e.tick(ctx) {
			continue
		}

		waitCtx, cancel := context.WithTimeout(ctx, e.pollIdle)
		if e.wake != nil {
			e.wake.WaitForWake(waitCtx, e.pollIdle)
		} else {
			<-waitCtx.Done()
		}
		cancel()
	}
}

// tick runs at most one job and reports whether it did work, so the caller
// can skip the idle sleep and immediately look for more.
func (e *Engine) tick(ctx context.Context) (ranJob bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("jobengine: handler panicked, worker loop survives")
		}
	}()

	job, err := e.db.NextRunnableJob(ctx)
	if err != nil {
		log.Error().Err(err).Msg("jobengine: failed to query next runnable job")
		time.Sleep(e.pollIdle)
		return false
	}
	if job == nil {
		return false
	}

	started, err := e.db.TryStartJob(ctx, job.ID)
	if err != nil {
		log.Error().Err(err).Str("job_id", job.ID.String()).Msg("jobengine: failed to start job")
		return false
	}
	if !started {
		// Lost the race to another loop; try again next tick.
		return false
	}

	log.Info().Str("job_id", job.ID.String()).Str("type", string(job.Type)).Str("project_id", job.ProjectID.String()).Msg("jobengine: running job")

	result, runErr := e.run(ctx, job)
	if runErr != nil {
		errStr := runErr.Error()
		if err := e.db.SetJob(ctx, job.ID, models.JobStatusFailed, nil, "failed", &errStr, models.UIMessage("jobmsg.failed", nil)); err != nil {
			log.Error().Err(err).Str("job_id", job.ID.String()).Msg("jobengine: failed to persist job failure")
		}
		log.Warn().Err(runErr).Str("job_id", job.ID.String()).Msg("jobengine: job failed")
		return true
	}

	progress := 100
	succeeded := models.JSONB{"data": result}
	for k, v := range models.UIMessage("jobmsg.succeeded", nil) {
		succeeded[k] = v
	}
	if err := e.db.SetJob(ctx, job.ID, models.JobStatusSucceeded, &progress, "succeeded", nil, succeeded); err != nil {
		log.Error().Err(err).Str("job_id", job.ID.String()).Msg("jobengine: failed to persist job success")
	}
	return true
}

func (e *Engine) run(ctx context.Context, job *models.Job) (map[string]interface{}, error) {
	switch job.Type {
	case models.JobTypeFullScript:
		return e.runFullScript(ctx, job)
	case models.JobTypeSegmentGenerate:
		return e.runSegmentGenerate(ctx, job)
	case models.JobTypeExtractFrame:
		return e.runExtractFrame(ctx, job)
	case models.JobTypeAnalyze:
		return e.runAnalyze(ctx, job)
	case models.JobTypeAssemble:
		return e.runAssemble(ctx, job)
	default:
		return nil, fmt.Errorf("jobengine: unknown job type %q", job.Type)
	}
}

// RunSync executes a job's handler inline and returns its result, without
// touching the queued/running/TryStartJob machinery. HTTP handlers for the
// synchronous routes (generate_full_script, generate_segment, ...) build a
// transient, never-persisted *models.Job and call this directly so the same
// prompt-building and persistence logic backs both the sync REST path and
// the async job queue — setProgress's errors are swallowed (see below) so
// a job ID that was never inserted into the jobs table is harmless.
func (e *Engine) RunSync(ctx context.Context, job *models.Job) (map[string]interface{}, error) {
	return e.run(ctx, job)
}

// setProgress persists an in-flight progress/ui_message update without
// changing status, so HTTP pollers see movement while a handler runs.
func (e *Engine) setProgress(ctx context.Context, jobID uuid.UUID, pct int, msgKey string, params map[string]interface{}) {
	p := pct
	if err := e.db.SetJob(ctx, jobID, models.JobStatusRunning, &p, "running", nil, models.UIMessage(msgKey, params)); err != nil {
		log.Warn().Err(err).Msg("jobengine: failed to persist progress update")
	}
}

func payloadInt(payload models.JSONB, key string) (int, bool) {
	v, ok := payload[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

func payloadString(payload models.JSONB, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func segNum(index int) string {
	return fmt.Sprintf("%03d", index+1)
}
