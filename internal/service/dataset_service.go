package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/veildata/api/internal/client"
	"github.com/veildata/api/internal/model"
	"github.com/veildata/api/internal/store"
)

// DatasetService owns dataset artifacts: the emitter invoked by the pipeline
// on success, and the read/download/delete surface for owners.
type DatasetService struct {
	datasets *store.DatasetRepo
	jobs     *store.JobRepo
	guard    *AccessGuard
	storage  client.StorageClient // nil: content is served from the database
	log      *zap.SugaredLogger
}

func NewDatasetService(datasets *store.DatasetRepo, jobs *store.JobRepo, guard *AccessGuard, storage client.StorageClient, log *zap.SugaredLogger) *DatasetService {
	return &DatasetService{datasets: datasets, jobs: jobs, guard: guard, storage: storage, log: log}
}

// Emit persists the output of a successful job run. Called exactly once per
// run by the executor; the dataset row is never mutated afterwards.
func (s *DatasetService) Emit(ctx context.Context, jobID uint, content []byte, format model.DatasetFormat, recordCount int) (*model.Dataset, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("emit for job %d: %w", jobID, err)
	}

	key := fmt.Sprintf("datasets/%d/%s.%s", jobID, uuid.NewString(), format)
	dataset := &model.Dataset{
		JobID:       jobID,
		Name:        fmt.Sprintf("%s (de-identified)", job.Source.Name),
		Format:      format,
		RecordCount: recordCount,
		ByteSize:    int64(len(content)),
		Content:     content,
		StorageKey:  key,
		Metadata: datatypes.JSONMap{
			"sourceId": job.SourceID,
		},
	}

	if s.storage != nil {
		url, err := s.storage.Upload(ctx, key, bytes.NewReader(content), ContentType(format))
		if err != nil {
			return nil, fmt.Errorf("emit for job %d: upload: %w", jobID, err)
		}
		dataset.DownloadURL = url
	}

	if err := s.datasets.Create(ctx, dataset); err != nil {
		return nil, fmt.Errorf("emit for job %d: %w", jobID, err)
	}

	if dataset.DownloadURL == "" {
		// no object storage configured; the API download route serves the blob
		dataset.DownloadURL = fmt.Sprintf("/api/datasets/%d/download", dataset.ID)
		if err := s.datasets.SetDownloadURL(ctx, dataset.ID, dataset.DownloadURL); err != nil {
			return nil, fmt.Errorf("emit for job %d: %w", jobID, err)
		}
	}

	s.log.Infow("dataset emitted",
		"dataset_id", dataset.ID,
		"job_id", jobID,
		"records", recordCount,
		"bytes", dataset.ByteSize,
	)
	return dataset, nil
}

func (s *DatasetService) Get(ctx context.Context, datasetID, callerOrgID uint) (*model.Dataset, error) {
	return s.guard.Dataset(ctx, datasetID, callerOrgID)
}

// Download returns the dataset with its content for streaming to the caller.
// Expired datasets are treated as gone.
func (s *DatasetService) Download(ctx context.Context, datasetID, callerOrgID uint) (*model.Dataset, error) {
	dataset, err := s.guard.Dataset(ctx, datasetID, callerOrgID)
	if err != nil {
		return nil, err
	}
	if dataset.ExpiresAt != nil && dataset.ExpiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("dataset %d expired: %w", datasetID, ErrNotFound)
	}
	return dataset, nil
}

func (s *DatasetService) Delete(ctx context.Context, datasetID, callerOrgID uint) error {
	dataset, err := s.guard.Dataset(ctx, datasetID, callerOrgID)
	if err != nil {
		return err
	}
	if err := s.datasets.Delete(ctx, datasetID); err != nil {
		return err
	}
	if s.storage != nil && dataset.StorageKey != "" {
		if err := s.storage.Delete(ctx, dataset.StorageKey); err != nil {
			s.log.Warnw("failed to delete stored artifact", "key", dataset.StorageKey, "error", err)
		}
	}
	return nil
}

// ContentType maps a dataset format to its MIME type.
func ContentType(format model.DatasetFormat) string {
	switch format {
	case model.FormatCSV:
		return "text/csv"
	case model.FormatJSON:
		return "application/json"
	default:
		return "application/x-ndjson"
	}
}
