package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/veildata/api/internal/model"
	"github.com/veildata/api/internal/store"
)

// Emitter materializes a successful run's output into a persisted dataset.
// It is called exactly once per run, by the executor's single pass.
type Emitter interface {
	Emit(ctx context.Context, jobID uint, content []byte, format model.DatasetFormat, recordCount int) (*model.Dataset, error)
}

// Executor drives a job through the ordered stages, mutating the job record
// at every stage boundary. It is a single-pass, single-direction machine: on
// any stage error the job ends failed with a message, on success a dataset is
// emitted and the job ends completed. The executor never leaves a job
// non-terminal once the run stops.
type Executor struct {
	jobs       *store.JobRepo
	sources    *store.SourceRepo
	emitter    Emitter
	registry   *Registry
	stages     []StageDescriptor
	stageDelay time.Duration
	log        *zap.SugaredLogger
}

func NewExecutor(
	jobs *store.JobRepo,
	sources *store.SourceRepo,
	emitter Emitter,
	registry *Registry,
	stages []StageDescriptor,
	stageDelay time.Duration,
	log *zap.SugaredLogger,
) *Executor {
	return &Executor{
		jobs:       jobs,
		sources:    sources,
		emitter:    emitter,
		registry:   registry,
		stages:     stages,
		stageDelay: stageDelay,
		log:        log,
	}
}

// Run executes the whole pipeline for one job. The returned error reports
// infrastructure trouble only (job row gone, store unreachable); stage
// failures are captured on the job record and return nil.
func (e *Executor) Run(ctx context.Context, jobID uint) error {
	runCtx := e.registry.register(ctx, jobID)
	defer e.registry.release(jobID)

	start := time.Now()

	job, err := e.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("job %d: %w", jobID, err)
	}
	if job.Status.IsTerminal() {
		// cancelled before the run began
		return nil
	}

	source, err := e.sources.GetByID(ctx, job.SourceID)
	if err != nil {
		e.fail(ctx, job, "Source is no longer available")
		return nil
	}
	if source.Config == nil {
		e.fail(ctx, job, "Source configuration missing")
		return nil
	}

	run := &Run{
		Job:     job,
		Source:  source,
		Schema:  source.Config.Schema.Data(),
		Mapping: source.Config.Mapping.Data(),
		Rules:   source.Config.Rules.Data(),
	}

	now := time.Now()
	if err := e.jobs.Update(ctx, jobID, map[string]interface{}{
		"status":     model.JobStatusRunning,
		"started_at": now,
	}); err != nil {
		return fmt.Errorf("job %d: mark running: %w", jobID, err)
	}
	e.log.Infow("pipeline started", "job_id", jobID, "source_id", job.SourceID)

	for i, stage := range e.stages {
		if stopped, err := e.haltedExternally(ctx, runCtx, jobID); stopped || err != nil {
			return err
		}

		if err := e.jobs.Update(ctx, jobID, map[string]interface{}{
			"stage":    stage.Name,
			"progress": stage.Checkpoint,
		}); err != nil {
			return fmt.Errorf("job %d: enter stage %s: %w", jobID, stage.Name, err)
		}
		e.log.Debugw("stage started", "job_id", jobID, "stage", stage.Name)

		if err := stage.Handler(runCtx, run); err != nil {
			e.fail(ctx, job, fmt.Sprintf("%s stage failed: %v", stage.Name, err))
			return nil
		}

		// stage-boundary counters
		counters := map[string]interface{}{}
		if stage.Name == model.StageParsing {
			counters["total_records"] = run.Total
		}
		if stage.Name == model.StageMapping {
			counters["records_processed"] = run.Processed
		}
		if len(counters) > 0 {
			if err := e.jobs.Update(ctx, jobID, counters); err != nil {
				return fmt.Errorf("job %d: update counters: %w", jobID, err)
			}
		}

		if i < len(e.stages)-1 && e.stageDelay > 0 {
			select {
			case <-runCtx.Done():
			case <-time.After(e.stageDelay):
			}
		}
	}

	if stopped, err := e.haltedExternally(ctx, runCtx, jobID); stopped || err != nil {
		return err
	}

	content, err := encodeJSONL(run.Records)
	if err != nil {
		e.fail(ctx, job, fmt.Sprintf("failed to encode output: %v", err))
		return nil
	}
	if _, err := e.emitter.Emit(ctx, jobID, content, model.FormatJSONL, run.Processed); err != nil {
		e.fail(ctx, job, fmt.Sprintf("failed to persist dataset: %v", err))
		return nil
	}

	completedAt := time.Now()
	if err := e.jobs.Update(ctx, jobID, map[string]interface{}{
		"status":       model.JobStatusCompleted,
		"stage":        model.StageComplete,
		"progress":     100,
		"completed_at": completedAt,
	}); err != nil {
		return fmt.Errorf("job %d: mark completed: %w", jobID, err)
	}
	if err := e.sources.UpdateStatus(ctx, job.SourceID, model.SourceStatusReady); err != nil {
		e.log.Errorw("failed to mark source ready", "source_id", job.SourceID, "error", err)
	}

	e.log.Infow("pipeline completed",
		"job_id", jobID,
		"records", run.Processed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// haltedExternally re-reads the job at a stage boundary. If the record was
// driven terminal from outside (cancel), the run stops without resurrecting
// it. If only the run context died (shutdown), the record is failed so the
// job never stays non-terminal. This narrows the cancel-vs-advance race to a
// single stage; writes remain last-write-wins with no version guard.
func (e *Executor) haltedExternally(ctx context.Context, runCtx context.Context, jobID uint) (bool, error) {
	fresh, err := e.jobs.GetByID(ctx, jobID)
	if err != nil {
		return true, fmt.Errorf("job %d: reload: %w", jobID, err)
	}
	if fresh.Status.IsTerminal() {
		e.log.Infow("pipeline stopped, job terminal", "job_id", jobID, "status", fresh.Status)
		return true, nil
	}
	if runCtx.Err() != nil {
		e.fail(ctx, fresh, "Processing interrupted")
		return true, nil
	}
	return false, nil
}

func (e *Executor) fail(ctx context.Context, job *model.ProcessingJob, msg string) {
	completedAt := time.Now()
	if err := e.jobs.Update(ctx, job.ID, map[string]interface{}{
		"status":        model.JobStatusFailed,
		"error_message": msg,
		"completed_at":  completedAt,
	}); err != nil {
		e.log.Errorw("failed to mark job failed", "job_id", job.ID, "error", err)
	}
	if err := e.sources.UpdateStatus(ctx, job.SourceID, model.SourceStatusError); err != nil {
		e.log.Errorw("failed to mark source errored", "source_id", job.SourceID, "error", err)
	}
	e.log.Warnw("pipeline failed", "job_id", job.ID, "error", msg)
}

func encodeJSONL(records []map[string]interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
