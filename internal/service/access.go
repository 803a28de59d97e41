package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/veildata/api/internal/model"
	"github.com/veildata/api/internal/store"
)

// AccessGuard is the tenant-isolation boundary. Every stateful operation
// resolves its entity through the guard before touching it: the entity's
// organization (via project → owning user) must match the caller's, otherwise
// the call fails Forbidden. Missing or soft-deleted entities fail NotFound
// regardless of the caller, so identifiers leak nothing across tenants.
type AccessGuard struct {
	projects *store.ProjectRepo
	sources  *store.SourceRepo
	jobs     *store.JobRepo
	datasets *store.DatasetRepo
}

func NewAccessGuard(projects *store.ProjectRepo, sources *store.SourceRepo, jobs *store.JobRepo, datasets *store.DatasetRepo) *AccessGuard {
	return &AccessGuard{projects: projects, sources: sources, jobs: jobs, datasets: datasets}
}

func (g *AccessGuard) Project(ctx context.Context, projectID, callerOrgID uint) (*model.Project, error) {
	project, err := g.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, translateLookup(err, "project")
	}
	if project.User == nil || project.User.OrganizationID != callerOrgID {
		return nil, fmt.Errorf("project %d: %w", projectID, ErrForbidden)
	}
	return project, nil
}

func (g *AccessGuard) Source(ctx context.Context, sourceID, callerOrgID uint) (*model.Source, error) {
	source, err := g.sources.GetByID(ctx, sourceID)
	if err != nil {
		return nil, translateLookup(err, "source")
	}
	if err := ownerOrg(source.Project, callerOrgID); err != nil {
		return nil, fmt.Errorf("source %d: %w", sourceID, err)
	}
	return source, nil
}

func (g *AccessGuard) Job(ctx context.Context, jobID, callerOrgID uint) (*model.ProcessingJob, error) {
	job, err := g.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, translateLookup(err, "job")
	}
	if err := ownerOrg(job.Source.Project, callerOrgID); err != nil {
		return nil, fmt.Errorf("job %d: %w", jobID, err)
	}
	return job, nil
}

func (g *AccessGuard) Dataset(ctx context.Context, datasetID, callerOrgID uint) (*model.Dataset, error) {
	dataset, err := g.datasets.GetByID(ctx, datasetID)
	if err != nil {
		return nil, translateLookup(err, "dataset")
	}
	if err := ownerOrg(dataset.Job.Source.Project, callerOrgID); err != nil {
		return nil, fmt.Errorf("dataset %d: %w", datasetID, err)
	}
	return dataset, nil
}

func ownerOrg(project *model.Project, callerOrgID uint) error {
	if project == nil || project.User == nil {
		return ErrNotFound
	}
	if project.User.OrganizationID != callerOrgID {
		return ErrForbidden
	}
	return nil
}

func translateLookup(err error, entity string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", entity, ErrNotFound)
	}
	return err
}
