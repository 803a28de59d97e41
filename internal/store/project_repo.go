package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/veildata/api/internal/model"
)

type ProjectRepo struct {
	db *gorm.DB
}

func NewProjectRepo(db *gorm.DB) *ProjectRepo {
	return &ProjectRepo{db: db}
}

func (r *ProjectRepo) Create(ctx context.Context, project *model.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

// GetByID returns the project with its owning user preloaded. Soft-deleted
// projects are not found.
func (r *ProjectRepo) GetByID(ctx context.Context, id uint) (*model.Project, error) {
	var project model.Project
	if err := r.db.WithContext(ctx).Preload("User").First(&project, id).Error; err != nil {
		return nil, translate(err)
	}
	return &project, nil
}

func (r *ProjectRepo) ListByOrganization(ctx context.Context, orgID uint, offset, limit int) ([]model.Project, error) {
	var projects []model.Project
	err := r.db.WithContext(ctx).
		Joins("JOIN users ON users.id = projects.user_id").
		Where("users.organization_id = ?", orgID).
		Order("projects.created_at DESC").
		Offset(offset).Limit(limit).
		Find(&projects).Error
	return projects, err
}

func (r *ProjectRepo) Update(ctx context.Context, id uint, updates map[string]interface{}) error {
	tx := r.db.WithContext(ctx).Model(&model.Project{}).Where("id = ?", id).Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ProjectRepo) Delete(ctx context.Context, id uint) error {
	tx := r.db.WithContext(ctx).Delete(&model.Project{}, id)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
