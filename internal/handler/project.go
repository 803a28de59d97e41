package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/veildata/api/internal/middleware"
	"github.com/veildata/api/internal/model"
	"github.com/veildata/api/internal/service"
	"github.com/veildata/api/pkg/response"
)

type ProjectHandler struct {
	service   *service.ProjectService
	validator *validator.Validate
}

func NewProjectHandler(svc *service.ProjectService, v *validator.Validate) *ProjectHandler {
	return &ProjectHandler{service: svc, validator: v}
}

// Create handles POST /api/projects
func (h *ProjectHandler) Create(c *fiber.Ctx) error {
	var req model.CreateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	project, err := h.service.Create(c.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		return serviceError(c, err)
	}
	return response.Created(c, project)
}

// List handles GET /api/projects
func (h *ProjectHandler) List(c *fiber.Ctx) error {
	projects, err := h.service.List(c.Context(), middleware.GetOrganizationID(c), pageFromQuery(c))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, projects)
}

// Get handles GET /api/projects/:projectId
func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	projectID, err := paramID(c, "projectId")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	project, err := h.service.Get(c.Context(), projectID, middleware.GetOrganizationID(c))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, project)
}

// Update handles PUT /api/projects/:projectId
func (h *ProjectHandler) Update(c *fiber.Ctx) error {
	projectID, err := paramID(c, "projectId")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	var req model.UpdateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	project, err := h.service.Update(c.Context(), projectID, middleware.GetOrganizationID(c), &req)
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, project)
}

// Delete handles DELETE /api/projects/:projectId
func (h *ProjectHandler) Delete(c *fiber.Ctx) error {
	projectID, err := paramID(c, "projectId")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	if err := h.service.Delete(c.Context(), projectID, middleware.GetOrganizationID(c)); err != nil {
		return serviceError(c, err)
	}
	return response.NoContent(c)
}
