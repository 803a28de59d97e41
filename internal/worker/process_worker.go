package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/veildata/api/internal/pipeline"
)

const (
	TaskTypeProcessSource = "source:process"
	QueuePipeline         = "pipeline"
)

type processTaskPayload struct {
	JobID uint `json:"jobId"`
}

// NewProcessTask builds the asynq task that carries one job to the worker.
func NewProcessTask(jobID uint) (*asynq.Task, error) {
	data, err := json.Marshal(processTaskPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeProcessSource, data), nil
}

// ProcessWorker adapts asynq task delivery to the pipeline executor.
type ProcessWorker struct {
	executor *pipeline.Executor
	log      *zap.SugaredLogger
}

func NewProcessWorker(executor *pipeline.Executor, log *zap.SugaredLogger) *ProcessWorker {
	return &ProcessWorker{executor: executor, log: log}
}

// ProcessTask runs the pipeline for the job named in the task. Stage failures
// are captured on the job record by the executor; an error here means the run
// could not be driven at all.
func (w *ProcessWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload processTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal process task payload: %w", err)
	}

	if err := w.executor.Run(ctx, payload.JobID); err != nil {
		w.log.Errorw("pipeline run failed", "job_id", payload.JobID, "error", err)
		return err
	}
	return nil
}
