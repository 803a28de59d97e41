package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/veildata/api/internal/pipeline"
)

// AsynqDispatcher enqueues process tasks for the in-process asynq server.
type AsynqDispatcher struct {
	client *asynq.Client
}

func NewAsynqDispatcher(client *asynq.Client) *AsynqDispatcher {
	return &AsynqDispatcher{client: client}
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, jobID uint) error {
	task, err := NewProcessTask(jobID)
	if err != nil {
		return err
	}
	// No retry: a failed run is already terminal on the job record and must
	// not be re-driven.
	_, err = d.client.EnqueueContext(ctx, task, asynq.Queue(QueuePipeline), asynq.MaxRetry(0))
	if err != nil {
		return fmt.Errorf("failed to enqueue process task: %w", err)
	}
	return nil
}

// GoDispatcher runs the pipeline on a plain goroutine, detached from the
// request context. Used when redis is not configured, and by tests. Same
// fire-and-forget contract as the asynq path.
type GoDispatcher struct {
	executor *pipeline.Executor
	log      *zap.SugaredLogger
}

func NewGoDispatcher(executor *pipeline.Executor, log *zap.SugaredLogger) *GoDispatcher {
	return &GoDispatcher{executor: executor, log: log}
}

func (d *GoDispatcher) Dispatch(_ context.Context, jobID uint) error {
	go func() {
		if err := d.executor.Run(context.Background(), jobID); err != nil {
			d.log.Errorw("pipeline run failed", "job_id", jobID, "error", err)
		}
	}()
	return nil
}
