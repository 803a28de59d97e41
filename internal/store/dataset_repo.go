package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/veildata/api/internal/model"
)

type DatasetRepo struct {
	db *gorm.DB
}

func NewDatasetRepo(db *gorm.DB) *DatasetRepo {
	return &DatasetRepo{db: db}
}

func (r *DatasetRepo) Create(ctx context.Context, dataset *model.Dataset) error {
	return r.db.WithContext(ctx).Create(dataset).Error
}

func (r *DatasetRepo) GetByID(ctx context.Context, id uint) (*model.Dataset, error) {
	var dataset model.Dataset
	err := r.db.WithContext(ctx).
		Preload("Job.Source.Project.User").
		First(&dataset, id).Error
	if err != nil {
		return nil, translate(err)
	}
	if dataset.Job == nil || dataset.Job.Source == nil || dataset.Job.Source.Project == nil {
		return nil, ErrNotFound
	}
	return &dataset, nil
}

func (r *DatasetRepo) ListByJob(ctx context.Context, jobID uint) ([]model.Dataset, error) {
	var datasets []model.Dataset
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at DESC").
		Find(&datasets).Error
	return datasets, err
}

// SetDownloadURL backfills the download reference once the row ID is known.
// The only write a dataset sees after creation.
func (r *DatasetRepo) SetDownloadURL(ctx context.Context, id uint, url string) error {
	tx := r.db.WithContext(ctx).Model(&model.Dataset{}).Where("id = ?", id).
		Update("download_url", url)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *DatasetRepo) Delete(ctx context.Context, id uint) error {
	tx := r.db.WithContext(ctx).Delete(&model.Dataset{}, id)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
