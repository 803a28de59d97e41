package service

import (
	"context"

	"github.com/veildata/api/internal/model"
	"github.com/veildata/api/internal/store"
)

type ProjectService struct {
	projects *store.ProjectRepo
	guard    *AccessGuard
}

func NewProjectService(projects *store.ProjectRepo, guard *AccessGuard) *ProjectService {
	return &ProjectService{projects: projects, guard: guard}
}

func (s *ProjectService) Create(ctx context.Context, userID uint, req *model.CreateProjectRequest) (*model.Project, error) {
	project := &model.Project{
		UserID:      userID,
		Name:        req.Name,
		Description: req.Description,
	}
	if err := s.projects.Create(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

func (s *ProjectService) Get(ctx context.Context, projectID, callerOrgID uint) (*model.Project, error) {
	return s.guard.Project(ctx, projectID, callerOrgID)
}

func (s *ProjectService) List(ctx context.Context, callerOrgID uint, page Page) ([]model.Project, error) {
	return s.projects.ListByOrganization(ctx, callerOrgID, page.Offset(), page.Limit)
}

func (s *ProjectService) Update(ctx context.Context, projectID, callerOrgID uint, req *model.UpdateProjectRequest) (*model.Project, error) {
	if _, err := s.guard.Project(ctx, projectID, callerOrgID); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if len(updates) > 0 {
		if err := s.projects.Update(ctx, projectID, updates); err != nil {
			return nil, err
		}
	}
	return s.projects.GetByID(ctx, projectID)
}

func (s *ProjectService) Delete(ctx context.Context, projectID, callerOrgID uint) error {
	if _, err := s.guard.Project(ctx, projectID, callerOrgID); err != nil {
		return err
	}
	return s.projects.Delete(ctx, projectID)
}

// Page is shared pagination input for list endpoints.
type Page struct {
	Number int
	Limit  int
}

func NewPage(number, limit int) Page {
	if number < 1 {
		number = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return Page{Number: number, Limit: limit}
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Limit
}
