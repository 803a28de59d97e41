package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/veildata/api/internal/model"
)

type SourceRepo struct {
	db *gorm.DB
}

func NewSourceRepo(db *gorm.DB) *SourceRepo {
	return &SourceRepo{db: db}
}

func (r *SourceRepo) Create(ctx context.Context, source *model.Source) error {
	return r.db.WithContext(ctx).Create(source).Error
}

// GetByID returns the source with its config and the project→user ownership
// chain preloaded. A soft-deleted source, or one whose project was soft-deleted,
// is not found.
func (r *SourceRepo) GetByID(ctx context.Context, id uint) (*model.Source, error) {
	var source model.Source
	err := r.db.WithContext(ctx).
		Preload("Config").
		Preload("Project.User").
		First(&source, id).Error
	if err != nil {
		return nil, translate(err)
	}
	if source.Project == nil {
		return nil, ErrNotFound
	}
	return &source, nil
}

func (r *SourceRepo) ListByProject(ctx context.Context, projectID uint, offset, limit int) ([]model.Source, error) {
	var sources []model.Source
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&sources).Error
	return sources, err
}

func (r *SourceRepo) Update(ctx context.Context, id uint, updates map[string]interface{}) error {
	tx := r.db.WithContext(ctx).Model(&model.Source{}).Where("id = ?", id).Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SourceRepo) UpdateStatus(ctx context.Context, id uint, status model.SourceStatus) error {
	return r.Update(ctx, id, map[string]interface{}{"status": status})
}

func (r *SourceRepo) Delete(ctx context.Context, id uint) error {
	tx := r.db.WithContext(ctx).Delete(&model.Source{}, id)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertConfig creates or replaces the 1:1 source configuration.
func (r *SourceRepo) UpsertConfig(ctx context.Context, cfg *model.SourceConfig) error {
	var existing model.SourceConfig
	err := r.db.WithContext(ctx).Where("source_id = ?", cfg.SourceID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.WithContext(ctx).Create(cfg).Error
	}
	if err != nil {
		return err
	}
	cfg.ID = existing.ID
	cfg.CreatedAt = existing.CreatedAt
	return r.db.WithContext(ctx).Save(cfg).Error
}
