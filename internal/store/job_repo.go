package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/veildata/api/internal/model"
)

// JobRepo is the job record store. All stage/progress mutations made by the
// pipeline executor go through Update; readers go through GetByID/ListBySource.
// Updates are last-write-wins per field, there is no version guard.
type JobRepo struct {
	db *gorm.DB
}

func NewJobRepo(db *gorm.DB) *JobRepo {
	return &JobRepo{db: db}
}

func (r *JobRepo) Create(ctx context.Context, job *model.ProcessingJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *JobRepo) GetByID(ctx context.Context, id uint) (*model.ProcessingJob, error) {
	var job model.ProcessingJob
	err := r.db.WithContext(ctx).
		Preload("Datasets").
		Preload("Source.Project.User").
		First(&job, id).Error
	if err != nil {
		return nil, translate(err)
	}
	if job.Source == nil || job.Source.Project == nil {
		return nil, ErrNotFound
	}
	return &job, nil
}

func (r *JobRepo) Update(ctx context.Context, id uint, updates map[string]interface{}) error {
	tx := r.db.WithContext(ctx).Model(&model.ProcessingJob{}).Where("id = ?", id).Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *JobRepo) ListBySource(ctx context.Context, sourceID uint, offset, limit int) ([]model.ProcessingJob, error) {
	var jobs []model.ProcessingJob
	err := r.db.WithContext(ctx).
		Where("source_id = ?", sourceID).
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// ActiveBySource returns the non-terminal job for a source, if any. Backs the
// one-running-job-per-source check at creation time.
func (r *JobRepo) ActiveBySource(ctx context.Context, sourceID uint) (*model.ProcessingJob, error) {
	var job model.ProcessingJob
	err := r.db.WithContext(ctx).
		Where("source_id = ? AND status IN ?", sourceID,
			[]model.JobStatus{model.JobStatusPending, model.JobStatusRunning}).
		Order("created_at DESC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}
