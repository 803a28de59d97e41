package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/veildata/api/internal/middleware"
	"github.com/veildata/api/internal/model"
	"github.com/veildata/api/internal/service"
	"github.com/veildata/api/pkg/response"
)

type SourceHandler struct {
	service   *service.SourceService
	validator *validator.Validate
}

func NewSourceHandler(svc *service.SourceService, v *validator.Validate) *SourceHandler {
	return &SourceHandler{service: svc, validator: v}
}

// Create handles POST /api/projects/:projectId/sources
func (h *SourceHandler) Create(c *fiber.Ctx) error {
	projectID, err := paramID(c, "projectId")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	var req model.CreateSourceRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	source, err := h.service.Create(c.Context(), projectID, middleware.GetOrganizationID(c), &req)
	if err != nil {
		return serviceError(c, err)
	}
	return response.Created(c, source)
}

// List handles GET /api/projects/:projectId/sources
func (h *SourceHandler) List(c *fiber.Ctx) error {
	projectID, err := paramID(c, "projectId")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	sources, err := h.service.ListByProject(c.Context(), projectID, middleware.GetOrganizationID(c), pageFromQuery(c))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, sources)
}

// Get handles GET /api/sources/:sourceId
func (h *SourceHandler) Get(c *fiber.Ctx) error {
	sourceID, err := paramID(c, "sourceId")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	source, err := h.service.Get(c.Context(), sourceID, middleware.GetOrganizationID(c))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, source)
}

// Update handles PUT /api/sources/:sourceId
func (h *SourceHandler) Update(c *fiber.Ctx) error {
	sourceID, err := paramID(c, "sourceId")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	var req model.UpdateSourceRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	source, err := h.service.Update(c.Context(), sourceID, middleware.GetOrganizationID(c), &req)
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, source)
}

// Delete handles DELETE /api/sources/:sourceId
func (h *SourceHandler) Delete(c *fiber.Ctx) error {
	sourceID, err := paramID(c, "sourceId")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	if err := h.service.Delete(c.Context(), sourceID, middleware.GetOrganizationID(c)); err != nil {
		return serviceError(c, err)
	}
	return response.NoContent(c)
}

// Configure handles PUT /api/sources/:sourceId/config
func (h *SourceHandler) Configure(c *fiber.Ctx) error {
	sourceID, err := paramID(c, "sourceId")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	var req model.ConfigureSourceRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	source, err := h.service.Configure(c.Context(), sourceID, middleware.GetOrganizationID(c), &req)
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, source)
}
