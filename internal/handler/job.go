package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/veildata/api/internal/middleware"
	"github.com/veildata/api/internal/model"
	"github.com/veildata/api/internal/service"
	"github.com/veildata/api/pkg/response"
)

type JobHandler struct {
	service *service.JobService
}

func NewJobHandler(svc *service.JobService) *JobHandler {
	return &JobHandler{service: svc}
}

// Start handles POST /api/sources/:sourceId/process
func (h *JobHandler) Start(c *fiber.Ctx) error {
	sourceID, err := paramID(c, "sourceId")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	job, err := h.service.StartProcessing(c.Context(), sourceID, middleware.GetOrganizationID(c))
	if err != nil {
		return serviceError(c, err)
	}
	return response.Created(c, model.StartProcessResponse{
		ID:        job.ID,
		SourceID:  job.SourceID,
		Status:    job.Status,
		Stage:     job.Stage,
		Progress:  job.Progress,
		CreatedAt: job.CreatedAt,
	})
}

// Get handles GET /api/jobs/:jobId
func (h *JobHandler) Get(c *fiber.Ctx) error {
	jobID, err := paramID(c, "jobId")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	job, err := h.service.GetJob(c.Context(), jobID, middleware.GetOrganizationID(c))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, job)
}

// Progress handles GET /api/jobs/:jobId/progress
func (h *JobHandler) Progress(c *fiber.Ctx) error {
	jobID, err := paramID(c, "jobId")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	progress, err := h.service.GetProgress(c.Context(), jobID, middleware.GetOrganizationID(c))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, progress)
}

// ListForSource handles GET /api/sources/:sourceId/jobs
func (h *JobHandler) ListForSource(c *fiber.Ctx) error {
	sourceID, err := paramID(c, "sourceId")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	jobs, err := h.service.ListForSource(c.Context(), sourceID, middleware.GetOrganizationID(c), pageFromQuery(c))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, jobs)
}

// Cancel handles POST /api/jobs/:jobId/cancel
func (h *JobHandler) Cancel(c *fiber.Ctx) error {
	jobID, err := paramID(c, "jobId")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	if err := h.service.Cancel(c.Context(), jobID, middleware.GetOrganizationID(c)); err != nil {
		return serviceError(c, err)
	}
	return response.NoContent(c)
}
