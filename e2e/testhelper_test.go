package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/veildata/api/internal/config"
	"github.com/veildata/api/internal/handler"
	"github.com/veildata/api/internal/middleware"
	"github.com/veildata/api/internal/pipeline"
	"github.com/veildata/api/internal/service"
	"github.com/veildata/api/internal/store"
	"github.com/veildata/api/internal/worker"
)

const testJWTSecret = "test-secret-for-e2e"

type testApp struct {
	app *fiber.App
}

// setupApp builds the API identical to main.go, on in-memory sqlite with the
// in-process dispatcher. No redis, no object storage.
func setupApp(t *testing.T) *testApp {
	return setupAppWithDelay(t, time.Millisecond)
}

func setupAppWithDelay(t *testing.T, stageDelay time.Duration) *testApp {
	t.Helper()

	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	zlog := zap.NewNop().Sugar()

	userRepo := store.NewUserRepo(db)
	projectRepo := store.NewProjectRepo(db)
	sourceRepo := store.NewSourceRepo(db)
	jobRepo := store.NewJobRepo(db)
	datasetRepo := store.NewDatasetRepo(db)

	guard := service.NewAccessGuard(projectRepo, sourceRepo, jobRepo, datasetRepo)

	registry := pipeline.NewRegistry()
	datasetService := service.NewDatasetService(datasetRepo, jobRepo, guard, nil, zlog)
	executor := pipeline.NewExecutor(jobRepo, sourceRepo, datasetService, registry, pipeline.DefaultStages(), stageDelay, zlog)
	dispatcher := worker.NewGoDispatcher(executor, zlog)

	authService := service.NewAuthService(userRepo, &config.JWTConfig{Secret: testJWTSecret, Expiration: 1})
	projectService := service.NewProjectService(projectRepo, guard)
	sourceService := service.NewSourceService(sourceRepo, jobRepo, guard)
	jobService := service.NewJobService(jobRepo, sourceRepo, guard, dispatcher, registry, zlog)

	validate := validator.New()
	authHandler := handler.NewAuthHandler(authService, validate)
	projectHandler := handler.NewProjectHandler(projectService, validate)
	sourceHandler := handler.NewSourceHandler(sourceService, validate)
	jobHandler := handler.NewJobHandler(jobService)
	datasetHandler := handler.NewDatasetHandler(datasetService)

	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(nil) // no redis: limiting disabled

	app := fiber.New()
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Post("/api/auth/register", authHandler.Register)
	app.Post("/api/auth/login", authHandler.Login)

	api := app.Group("/api", authMiddleware.Authenticate())

	projects := api.Group("/projects")
	projects.Post("/", projectHandler.Create)
	projects.Get("/", projectHandler.List)
	projects.Get("/:projectId", projectHandler.Get)
	projects.Put("/:projectId", projectHandler.Update)
	projects.Delete("/:projectId", projectHandler.Delete)
	projects.Post("/:projectId/sources", sourceHandler.Create)
	projects.Get("/:projectId/sources", sourceHandler.List)

	sources := api.Group("/sources")
	sources.Get("/:sourceId", sourceHandler.Get)
	sources.Put("/:sourceId", sourceHandler.Update)
	sources.Delete("/:sourceId", sourceHandler.Delete)
	sources.Put("/:sourceId/config", sourceHandler.Configure)
	sources.Post("/:sourceId/process", rateLimiter.ProcessLimit(10000), jobHandler.Start)
	sources.Get("/:sourceId/jobs", jobHandler.ListForSource)

	jobs := api.Group("/jobs")
	jobs.Get("/:jobId", jobHandler.Get)
	jobs.Get("/:jobId/progress", jobHandler.Progress)
	jobs.Post("/:jobId/cancel", jobHandler.Cancel)

	datasets := api.Group("/datasets")
	datasets.Get("/:datasetId", datasetHandler.Get)
	datasets.Get("/:datasetId/download", datasetHandler.Download)
	datasets.Delete("/:datasetId", datasetHandler.Delete)

	return &testApp{app: app}
}

// registerTenant registers a fresh organization and returns its token.
func registerTenant(t *testing.T, ta *testApp, orgName string) string {
	t.Helper()
	body := fmt.Sprintf(`{
		"organizationName": "%s",
		"email": "owner@%s.test",
		"password": "long-enough-password",
		"name": "Owner"
	}`, orgName, strings.ToLower(orgName))

	resp, err := doRequest(ta.app, http.MethodPost, "/api/auth/register", body, nil)
	if err != nil {
		t.Fatalf("register request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)

	result := parseJSON(t, resp)
	token, _ := result["token"].(string)
	if token == "" {
		t.Fatal("expected token in register response")
	}
	return token
}

// createProject creates a project and returns its id.
func createProject(t *testing.T, ta *testApp, token, name string) uint {
	t.Helper()
	body := fmt.Sprintf(`{"name": "%s"}`, name)
	resp, err := doTokenRequest(ta.app, http.MethodPost, "/api/projects/", body, token)
	if err != nil {
		t.Fatalf("create project failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)
	return jsonID(t, resp)
}

// createSource creates a source with sample records in its metadata.
func createSource(t *testing.T, ta *testApp, token string, projectID uint) uint {
	t.Helper()
	body := `{
		"name": "support tickets",
		"type": "file",
		"metadata": {
			"sampleRecords": [
				{"title": "login broken", "email": "a@example.com"},
				{"title": "billing question", "email": "b@example.com"},
				{"title": "feature request", "email": "c@example.com"}
			]
		}
	}`
	resp, err := doTokenRequest(ta.app, http.MethodPost, fmt.Sprintf("/api/projects/%d/sources", projectID), body, token)
	if err != nil {
		t.Fatalf("create source failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)
	return jsonID(t, resp)
}

// configureSource applies a schema, mapping and de-identification rules.
func configureSource(t *testing.T, ta *testApp, token string, sourceID uint) {
	t.Helper()
	body := `{
		"schema": {
			"name": "ticket",
			"fields": [
				{"name": "subject", "type": "string", "required": true},
				{"name": "email", "type": "string"}
			]
		},
		"mapping": {"title": "subject"},
		"rules": [
			{"field": "email", "action": "redact"}
		]
	}`
	resp, err := doTokenRequest(ta.app, http.MethodPut, fmt.Sprintf("/api/sources/%d/config", sourceID), body, token)
	if err != nil {
		t.Fatalf("configure source failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
}

// startProcessing kicks off a job and returns its id.
func startProcessing(t *testing.T, ta *testApp, token string, sourceID uint) uint {
	t.Helper()
	resp, err := doTokenRequest(ta.app, http.MethodPost, fmt.Sprintf("/api/sources/%d/process", sourceID), "", token)
	if err != nil {
		t.Fatalf("start processing failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)
	return jsonID(t, resp)
}

// pollUntilTerminal polls the progress endpoint until the job leaves
// pending/running or the deadline passes.
func pollUntilTerminal(t *testing.T, ta *testApp, token string, jobID uint) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := doTokenRequest(ta.app, http.MethodGet, fmt.Sprintf("/api/jobs/%d/progress", jobID), "", token)
		if err != nil {
			t.Fatalf("progress request failed: %v", err)
		}
		result := parseJSON(t, resp)
		status, _ := result["status"].(string)
		if status == "completed" || status == "failed" {
			return result
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal status in time")
	return nil
}

func doRequest(app *fiber.App, method, path, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

func doTokenRequest(app *fiber.App, method, path, body, token string) (*http.Response, error) {
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

func jsonID(t *testing.T, resp *http.Response) uint {
	t.Helper()
	result := parseJSON(t, resp)
	id, ok := result["id"].(float64)
	if !ok || id == 0 {
		t.Fatalf("expected numeric id in response, got %v", result["id"])
	}
	return uint(id)
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertErrorCode(t *testing.T, resp *http.Response, code string) {
	t.Helper()
	result := parseJSON(t, resp)
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", result)
	}
	if errObj["code"] != code {
		t.Errorf("expected error code %s, got %v", code, errObj["code"])
	}
}
