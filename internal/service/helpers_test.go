package service

import (
	"context"
	"fmt"
	"testing"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/veildata/api/internal/model"
	"github.com/veildata/api/internal/store"
)

type testEnv struct {
	db       *gorm.DB
	users    *store.UserRepo
	projects *store.ProjectRepo
	sources  *store.SourceRepo
	jobs     *store.JobRepo
	datasets *store.DatasetRepo
	guard    *AccessGuard
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	env := &testEnv{
		db:       db,
		users:    store.NewUserRepo(db),
		projects: store.NewProjectRepo(db),
		sources:  store.NewSourceRepo(db),
		jobs:     store.NewJobRepo(db),
		datasets: store.NewDatasetRepo(db),
	}
	env.guard = NewAccessGuard(env.projects, env.sources, env.jobs, env.datasets)
	return env
}

// seedTenant creates an organization with one owner user and one project.
func (env *testEnv) seedTenant(t *testing.T, name string) (*model.User, *model.Project) {
	t.Helper()

	org := &model.Organization{Name: name}
	if err := env.db.Create(org).Error; err != nil {
		t.Fatalf("seed org: %v", err)
	}
	user := &model.User{
		OrganizationID: org.ID,
		Email:          fmt.Sprintf("owner@%s.test", name),
		PasswordHash:   "x",
		Name:           "Owner",
		Role:           model.RoleOwner,
	}
	if err := env.db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	project := &model.Project{UserID: user.ID, Name: name + " project"}
	if err := env.db.Create(project).Error; err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return user, project
}

func (env *testEnv) seedSource(t *testing.T, projectID uint, configure bool) *model.Source {
	t.Helper()
	ctx := context.Background()

	source := &model.Source{
		ProjectID: projectID,
		Name:      "tickets",
		Type:      model.SourceTypeFile,
		Status:    model.SourceStatusPending,
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
			Rules:   datatypes.NewJSONType([]model.DeidRule{}),
		}
		if err := env.sources.UpsertConfig(ctx, cfg); err != nil {
			t.Fatalf("seed config: %v", err)
		}
		if err := env.sources.UpdateStatus(ctx, source.ID, model.SourceStatusConfigured); err != nil {
			t.Fatalf("seed source status: %v", err)
		}
		source.Status = model.SourceStatusConfigured
	}
	return source
}
