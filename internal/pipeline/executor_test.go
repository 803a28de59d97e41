package pipeline

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/veildata/api/internal/model"
	"github.com/veildata/api/internal/store"
)

type emittedDataset struct {
	jobID       uint
	content     []byte
	format      model.DatasetFormat
	recordCount int
}

// captureEmitter records what the executor hands off instead of persisting it.
type captureEmitter struct {
	mu       sync.Mutex
	datasets []emittedDataset
}

func (e *captureEmitter) Emit(_ context.Context, jobID uint, content []byte, format model.DatasetFormat, recordCount int) (*model.Dataset, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.datasets = append(e.datasets, emittedDataset{jobID, content, format, recordCount})
	return &model.Dataset{ID: uint(len(e.datasets)), JobID: jobID}, nil
}

func (e *captureEmitter) emitted() []emittedDataset {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]emittedDataset(nil), e.datasets...)
}

type executorEnv struct {
	db      *gorm.DB
	sources *store.SourceRepo
	jobs    *store.JobRepo
	emitter *captureEmitter
}

func newExecutorEnv(t *testing.T) *executorEnv {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	return &executorEnv{
		db:      db,
		sources: store.NewSourceRepo(db),
		jobs:    store.NewJobRepo(db),
		emitter: &captureEmitter{},
	}
}

func (env *executorEnv) executor(t *testing.T, stages []StageDescriptor, registry *Registry, delay time.Duration) *Executor {
	t.Helper()
	if registry == nil {
		registry = NewRegistry()
	}
	return NewExecutor(env.jobs, env.sources, env.emitter, registry, stages, delay, zap.NewNop().Sugar())
}

// seedSource creates the full ownership chain and a configured source.
func (env *executorEnv) seedSource(t *testing.T, metadata datatypes.JSONMap, configure bool) *model.Source {
	t.Helper()
	ctx := context.Background()

	org := &model.Organization{Name: "Acme"}
	if err := env.db.Create(org).Error; err != nil {
		t.Fatalf("seed org: %v", err)
	}
	user := &model.User{OrganizationID: org.ID, Email: "owner@acme.test", PasswordHash: "x", Role: model.RoleOwner}
	if err := env.db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	project := &model.Project{UserID: user.ID, Name: "proj"}
	if err := env.db.Create(project).Error; err != nil {
		t.Fatalf("seed project: %v", err)
	}

	source := &model.Source{
		ProjectID: project.ID,
		Name:      "tickets",
		Type:      model.SourceTypeFile,
		Status:    model.SourceStatusConfigured,
		Metadata:  metadata,
	}
	if err := env.sources.Create(ctx, source); err != nil {
		t.Fatalf("seed source: %v", err)
	}

	if configure {
		cfg := &model.SourceConfig{
			SourceID: source.ID,
			Schema: datatypes.NewJSONType(model.TargetSchema{
				Name: "ticket",
				Fields: []model.SchemaField{
					{Name: "subject", Type: "string"},
					{Name: "email", Type: "string"},
				},
			}),
			Mapping: datatypes.NewJSONType(map[string]string{}),
			Rules: datatypes.NewJSONType([]model.DeidRule{
				{Field: "email", Action: model.ActionRedact},
			}),
		}
		if err := env.sources.UpsertConfig(ctx, cfg); err != nil {
			t.Fatalf("seed config: %v", err)
		}
	}
	return source
}

func (env *executorEnv) seedJob(t *testing.T, sourceID uint) *model.ProcessingJob {
	t.Helper()
	job := &model.ProcessingJob{SourceID: sourceID, Status: model.JobStatusPending}
	if err := env.jobs.Create(context.Background(), job); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job
}

func sampleTickets() datatypes.JSONMap {
	return datatypes.JSONMap{
		"sampleRecords": []interface{}{
			map[string]interface{}{"subject": "login broken", "email": "a@example.com"},
			map[string]interface{}{"subject": "billing question", "email": "b@example.com"},
			map[string]interface{}{"subject": "feature request", "email": "c@example.com"},
		},
	}
}

func TestExecutorRun_CompletesJob(t *testing.T) {
	env := newExecutorEnv(t)
	source := env.seedSource(t, sampleTickets(), true)
	job := env.seedJob(t, source.ID)

	exec := env.executor(t, DefaultStages(), nil, 0)
	if err := exec.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got, err := env.jobs.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if got.Status != model.JobStatusCompleted {
		t.Errorf("expected completed, got %s (error=%v)", got.Status, got.ErrorMessage)
	}
	if got.Progress != 100 {
		t.Errorf("expected progress 100, got %d", got.Progress)
	}
	if got.Stage == nil || *got.Stage != model.StageComplete {
		t.Errorf("expected stage complete, got %v", got.Stage)
	}
	if got.TotalRecords == nil || *got.TotalRecords != 3 {
		t.Errorf("expected totalRecords 3, got %v", got.TotalRecords)
	}
	if got.RecordsProcessed != 3 {
		t.Errorf("expected recordsProcessed 3, got %d", got.RecordsProcessed)
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Error("expected startedAt and completedAt set")
	}

	src, err := env.sources.GetByID(context.Background(), source.ID)
	if err != nil {
		t.Fatalf("reload source: %v", err)
	}
	if src.Status != model.SourceStatusReady {
		t.Errorf("expected source ready, got %s", src.Status)
	}

	emitted := env.emitter.emitted()
	if len(emitted) != 1 {
		t.Fatalf("expected 1 dataset, got %d", len(emitted))
	}
	if emitted[0].format != model.FormatJSONL {
		t.Errorf("expected jsonl dataset, got %s", emitted[0].format)
	}
	if emitted[0].recordCount != 3 {
		t.Errorf("expected 3 records, got %d", emitted[0].recordCount)
	}
	if lines := bytes.Count(bytes.TrimSpace(emitted[0].content), []byte("\n")) + 1; lines != 3 {
		t.Errorf("expected 3 jsonl lines, got %d", lines)
	}
	if bytes.Contains(emitted[0].content, []byte("a@example.com")) {
		t.Error("expected emails scrubbed from output")
	}
	if !bytes.Contains(emitted[0].content, []byte("[REDACTED]")) {
		t.Error("expected redaction markers in output")
	}
}

func TestExecutorRun_MissingConfigFailsJob(t *testing.T) {
	env := newExecutorEnv(t)
	source := env.seedSource(t, nil, false)
	job := env.seedJob(t, source.ID)

	exec := env.executor(t, DefaultStages(), nil, 0)
	if err := exec.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got, err := env.jobs.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if got.Status != model.JobStatusFailed {
		t.Errorf("expected failed, got %s", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "Source configuration missing" {
		t.Errorf("unexpected error message: %v", got.ErrorMessage)
	}

	src, _ := env.sources.GetByID(context.Background(), source.ID)
	if src.Status != model.SourceStatusError {
		t.Errorf("expected source error, got %s", src.Status)
	}
	if len(env.emitter.emitted()) != 0 {
		t.Error("expected no dataset for failed run")
	}
}

func TestExecutorRun_StageErrorFailsJob(t *testing.T) {
	env := newExecutorEnv(t)
	// metadata carries a malformed sampleRecords payload
	source := env.seedSource(t, datatypes.JSONMap{"sampleRecords": "garbage"}, true)
	job := env.seedJob(t, source.ID)

	exec := env.executor(t, DefaultStages(), nil, 0)
	if err := exec.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got, _ := env.jobs.GetByID(context.Background(), job.ID)
	if got.Status != model.JobStatusFailed {
		t.Errorf("expected failed, got %s", got.Status)
	}
	if got.ErrorMessage == nil {
		t.Fatal("expected error message")
	}
	if *got.ErrorMessage == "" {
		t.Error("expected non-empty error message")
	}
}

func TestExecutorRun_TerminalJobNotResurrected(t *testing.T) {
	env := newExecutorEnv(t)
	source := env.seedSource(t, sampleTickets(), true)
	job := env.seedJob(t, source.ID)

	// cancelled before the worker picked it up
	msg := "Cancelled by user"
	if err := env.jobs.Update(context.Background(), job.ID, map[string]interface{}{
		"status":        model.JobStatusFailed,
		"error_message": msg,
	}); err != nil {
		t.Fatalf("cancel job: %v", err)
	}

	exec := env.executor(t, DefaultStages(), nil, 0)
	if err := exec.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got, _ := env.jobs.GetByID(context.Background(), job.ID)
	if got.Status != model.JobStatusFailed {
		t.Errorf("expected job to stay failed, got %s", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != msg {
		t.Errorf("expected cancel message preserved, got %v", got.ErrorMessage)
	}
	if len(env.emitter.emitted()) != 0 {
		t.Error("expected no dataset after cancellation")
	}
}

func TestExecutorRun_StopsAtBoundaryAfterCancel(t *testing.T) {
	env := newExecutorEnv(t)
	source := env.seedSource(t, sampleTickets(), true)
	job := env.seedJob(t, source.ID)

	// The first stage cancels the job record mid-run, as the cancel endpoint
	// would from another goroutine. The executor must notice at the next
	// boundary and stop without emitting.
	stages := []StageDescriptor{
		{Name: model.StageParsing, Checkpoint: 0, Handler: func(ctx context.Context, run *Run) error {
			if err := parseRecords(ctx, run); err != nil {
				return err
			}
			return env.jobs.Update(ctx, job.ID, map[string]interface{}{
				"status":        model.JobStatusFailed,
				"error_message": "Cancelled by user",
			})
		}},
		{Name: model.StageDetectingPII, Checkpoint: 25, Handler: detectPII},
		{Name: model.StageDeidentifying, Checkpoint: 50, Handler: deidentify},
		{Name: model.StageMapping, Checkpoint: 75, Handler: mapFields},
	}

	exec := env.executor(t, stages, nil, 0)
	if err := exec.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got, _ := env.jobs.GetByID(context.Background(), job.ID)
	if got.Status != model.JobStatusFailed {
		t.Errorf("expected job to stay failed, got %s", got.Status)
	}
	if got.Progress >= 25 {
		t.Errorf("expected run stopped before later checkpoints, got progress %d", got.Progress)
	}
	if len(env.emitter.emitted()) != 0 {
		t.Error("expected no dataset after mid-run cancellation")
	}
}

func TestExecutorRun_ContextCancelFailsJob(t *testing.T) {
	env := newExecutorEnv(t)
	source := env.seedSource(t, sampleTickets(), true)
	job := env.seedJob(t, source.ID)

	registry := NewRegistry()
	stages := []StageDescriptor{
		{Name: model.StageParsing, Checkpoint: 0, Handler: func(ctx context.Context, run *Run) error {
			if err := parseRecords(ctx, run); err != nil {
				return err
			}
			registry.Cancel(job.ID)
			return nil
		}},
		{Name: model.StageDetectingPII, Checkpoint: 25, Handler: detectPII},
	}

	exec := env.executor(t, stages, registry, 0)
	if err := exec.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got, _ := env.jobs.GetByID(context.Background(), job.ID)
	if got.Status != model.JobStatusFailed {
		t.Errorf("expected failed after context cancel, got %s", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "Processing interrupted" {
		t.Errorf("unexpected error message: %v", got.ErrorMessage)
	}
	if registry.InFlight() != 0 {
		t.Errorf("expected registry drained, got %d", registry.InFlight())
	}

	src, _ := env.sources.GetByID(context.Background(), source.ID)
	if src.Status != model.SourceStatusError {
		t.Errorf("expected source error, got %s", src.Status)
	}
}

func TestExecutorRun_ProgressCheckpoints(t *testing.T) {
	env := newExecutorEnv(t)
	source := env.seedSource(t, sampleTickets(), true)
	job := env.seedJob(t, source.ID)

	var checkpoints []int
	stages := make([]StageDescriptor, 0, len(DefaultStages()))
	for _, stage := range DefaultStages() {
		handler := stage.Handler
		stages = append(stages, StageDescriptor{
			Name:       stage.Name,
			Checkpoint: stage.Checkpoint,
			Handler: func(ctx context.Context, run *Run) error {
				fresh, err := env.jobs.GetByID(ctx, job.ID)
				if err != nil {
					return err
				}
				checkpoints = append(checkpoints, fresh.Progress)
				return handler(ctx, run)
			},
		})
	}

	exec := env.executor(t, stages, nil, 0)
	if err := exec.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	want := []int{0, 25, 50, 75}
	if len(checkpoints) != len(want) {
		t.Fatalf("expected %d checkpoints, got %v", len(want), checkpoints)
	}
	for i, cp := range want {
		if checkpoints[i] != cp {
			t.Errorf("checkpoint %d: expected %d, got %d", i, cp, checkpoints[i])
		}
	}
}
