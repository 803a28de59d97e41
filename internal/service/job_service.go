package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/veildata/api/internal/model"
	"github.com/veildata/api/internal/pipeline"
	"github.com/veildata/api/internal/store"
)

// Dispatcher hands a pending job to the pipeline executor without blocking
// the caller. Production uses the asynq-backed dispatcher; tests and
// redis-less dev mode use the plain goroutine one.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID uint) error
}

// JobService is the job control surface: start, poll, list, cancel.
type JobService struct {
	jobs       *store.JobRepo
	sources    *store.SourceRepo
	guard      *AccessGuard
	dispatcher Dispatcher
	registry   *pipeline.Registry
	log        *zap.SugaredLogger
}

func NewJobService(
	jobs *store.JobRepo,
	sources *store.SourceRepo,
	guard *AccessGuard,
	dispatcher Dispatcher,
	registry *pipeline.Registry,
	log *zap.SugaredLogger,
) *JobService {
	return &JobService{
		jobs:       jobs,
		sources:    sources,
		guard:      guard,
		dispatcher: dispatcher,
		registry:   registry,
		log:        log,
	}
}

// StartProcessing validates preconditions, creates a pending job, flips the
// source to processing and hands off to the executor. The caller gets the
// pending job back immediately; execution continues independently of the
// request.
func (s *JobService) StartProcessing(ctx context.Context, sourceID, callerOrgID uint) (*model.ProcessingJob, error) {
	source, err := s.guard.Source(ctx, sourceID, callerOrgID)
	if err != nil {
		return nil, err
	}

	if source.Config == nil || len(source.Config.Schema.Data().Fields) == 0 {
		return nil, fmt.Errorf("source target schema has no fields: %w", ErrUnprocessable)
	}

	if _, err := s.jobs.ActiveBySource(ctx, sourceID); err == nil {
		return nil, fmt.Errorf("a processing job is already active for this source: %w", ErrConflict)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	job := &model.ProcessingJob{
		SourceID: sourceID,
		Status:   model.JobStatusPending,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	if err := s.sources.UpdateStatus(ctx, sourceID, model.SourceStatusProcessing); err != nil {
		return nil, err
	}

	if err := s.dispatcher.Dispatch(ctx, job.ID); err != nil {
		// dispatch never ran; close the job out synchronously
		completedAt := time.Now()
		_ = s.jobs.Update(ctx, job.ID, map[string]interface{}{
			"status":        model.JobStatusFailed,
			"error_message": "Failed to dispatch processing task",
			"completed_at":  completedAt,
		})
		_ = s.sources.UpdateStatus(ctx, sourceID, model.SourceStatusError)
		return nil, fmt.Errorf("failed to dispatch job %d: %w", job.ID, err)
	}

	s.log.Infow("processing started", "job_id", job.ID, "source_id", sourceID)
	return job, nil
}

func (s *JobService) GetJob(ctx context.Context, jobID, callerOrgID uint) (*model.ProcessingJob, error) {
	return s.guard.Job(ctx, jobID, callerOrgID)
}

func (s *JobService) GetProgress(ctx context.Context, jobID, callerOrgID uint) (*model.JobProgressResponse, error) {
	job, err := s.guard.Job(ctx, jobID, callerOrgID)
	if err != nil {
		return nil, err
	}
	return &model.JobProgressResponse{
		ID:               job.ID,
		Status:           job.Status,
		Stage:            job.Stage,
		Progress:         job.Progress,
		RecordsProcessed: job.RecordsProcessed,
		TotalRecords:     job.TotalRecords,
		ErrorMessage:     job.ErrorMessage,
	}, nil
}

// ListForSource returns the source's jobs newest-first.
func (s *JobService) ListForSource(ctx context.Context, sourceID, callerOrgID uint, page Page) ([]model.ProcessingJob, error) {
	if _, err := s.guard.Source(ctx, sourceID, callerOrgID); err != nil {
		return nil, err
	}
	return s.jobs.ListBySource(ctx, sourceID, page.Offset(), page.Limit)
}

// Cancel fails a pending or running job with "Cancelled by user" and reverts
// the source to configured. The record write comes first; the in-process
// signal then stops the executor at its next stage boundary. A run mid-stage
// is not interrupted forcibly; the executor discovers the terminal status
// afterwards and stops without resurrecting the job.
func (s *JobService) Cancel(ctx context.Context, jobID, callerOrgID uint) error {
	job, err := s.guard.Job(ctx, jobID, callerOrgID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("job already %s: %w", job.Status, ErrInvalidState)
	}

	completedAt := time.Now()
	if err := s.jobs.Update(ctx, jobID, map[string]interface{}{
		"status":        model.JobStatusFailed,
		"error_message": "Cancelled by user",
		"completed_at":  completedAt,
	}); err != nil {
		return err
	}
	if err := s.sources.UpdateStatus(ctx, job.SourceID, model.SourceStatusConfigured); err != nil {
		return err
	}

	s.registry.Cancel(jobID)
	s.log.Infow("job cancelled", "job_id", jobID, "source_id", job.SourceID)
	return nil
}
