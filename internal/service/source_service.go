package service

import (
	"context"
	"fmt"
	"regexp"

	"gorm.io/datatypes"

	"github.com/veildata/api/internal/model"
	"github.com/veildata/api/internal/store"
)

type SourceService struct {
	sources *store.SourceRepo
	jobs    *store.JobRepo
	guard   *AccessGuard
}

func NewSourceService(sources *store.SourceRepo, jobs *store.JobRepo, guard *AccessGuard) *SourceService {
	return &SourceService{sources: sources, jobs: jobs, guard: guard}
}

func (s *SourceService) Create(ctx context.Context, projectID, callerOrgID uint, req *model.CreateSourceRequest) (*model.Source, error) {
	if _, err := s.guard.Project(ctx, projectID, callerOrgID); err != nil {
		return nil, err
	}

	source := &model.Source{
		ProjectID: projectID,
		Name:      req.Name,
		Type:      req.Type,
		Status:    model.SourceStatusPending,
		Metadata:  req.Metadata,
	}
	if err := s.sources.Create(ctx, source); err != nil {
		return nil, err
	}
	return source, nil
}

func (s *SourceService) Get(ctx context.Context, sourceID, callerOrgID uint) (*model.Source, error) {
	return s.guard.Source(ctx, sourceID, callerOrgID)
}

func (s *SourceService) ListByProject(ctx context.Context, projectID, callerOrgID uint, page Page) ([]model.Source, error) {
	if _, err := s.guard.Project(ctx, projectID, callerOrgID); err != nil {
		return nil, err
	}
	return s.sources.ListByProject(ctx, projectID, page.Offset(), page.Limit)
}

func (s *SourceService) Update(ctx context.Context, sourceID, callerOrgID uint, req *model.UpdateSourceRequest) (*model.Source, error) {
	if _, err := s.guard.Source(ctx, sourceID, callerOrgID); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Metadata != nil {
		updates["metadata"] = datatypes.JSONMap(req.Metadata)
	}
	if len(updates) > 0 {
		if err := s.sources.Update(ctx, sourceID, updates); err != nil {
			return nil, err
		}
	}
	return s.sources.GetByID(ctx, sourceID)
}

// Delete soft-deletes a source. A source with an active job cannot be deleted.
func (s *SourceService) Delete(ctx context.Context, sourceID, callerOrgID uint) error {
	if _, err := s.guard.Source(ctx, sourceID, callerOrgID); err != nil {
		return err
	}
	if _, err := s.jobs.ActiveBySource(ctx, sourceID); err == nil {
		return fmt.Errorf("source has an active processing job: %w", ErrInvalidState)
	}
	return s.sources.Delete(ctx, sourceID)
}

// Configure upserts the source configuration and flips the source to
// configured. The target schema must have at least one field, mapping values
// must name schema fields, and rule patterns must compile.
func (s *SourceService) Configure(ctx context.Context, sourceID, callerOrgID uint, req *model.ConfigureSourceRequest) (*model.Source, error) {
	source, err := s.guard.Source(ctx, sourceID, callerOrgID)
	if err != nil {
		return nil, err
	}
	if source.Status == model.SourceStatusProcessing {
		return nil, fmt.Errorf("source is being processed: %w", ErrInvalidState)
	}

	if len(req.Schema.Fields) == 0 {
		return nil, fmt.Errorf("target schema must have at least one field: %w", ErrUnprocessable)
	}
	seen := map[string]bool{}
	for _, f := range req.Schema.Fields {
		if seen[f.Name] {
			return nil, fmt.Errorf("duplicate schema field %q: %w", f.Name, ErrUnprocessable)
		}
		seen[f.Name] = true
	}
	for _, rule := range req.Rules {
		if rule.Pattern == "" {
			continue
		}
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			return nil, fmt.Errorf("rule for %q has invalid pattern: %w", rule.Field, ErrUnprocessable)
		}
	}

	if req.Mapping == nil {
		req.Mapping = map[string]string{}
	}
	cfg := &model.SourceConfig{
		SourceID: sourceID,
		Schema:   datatypes.NewJSONType(req.Schema),
		Mapping:  datatypes.NewJSONType(req.Mapping),
		Rules:    datatypes.NewJSONType(req.Rules),
	}
	if err := s.sources.UpsertConfig(ctx, cfg); err != nil {
		return nil, err
	}
	if err := s.sources.UpdateStatus(ctx, sourceID, model.SourceStatusConfigured); err != nil {
		return nil, err
	}
	return s.sources.GetByID(ctx, sourceID)
}
