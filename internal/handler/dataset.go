package handler

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/veildata/api/internal/middleware"
	"github.com/veildata/api/internal/service"
	"github.com/veildata/api/pkg/response"
)

type DatasetHandler struct {
	service *service.DatasetService
}

func NewDatasetHandler(svc *service.DatasetService) *DatasetHandler {
	return &DatasetHandler{service: svc}
}

// Get handles GET /api/datasets/:datasetId
func (h *DatasetHandler) Get(c *fiber.Ctx) error {
	datasetID, err := paramID(c, "datasetId")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	dataset, err := h.service.Get(c.Context(), datasetID, middleware.GetOrganizationID(c))
	if err != nil {
		return serviceError(c, err)
	}
	return response.OK(c, dataset)
}

// Download handles GET /api/datasets/:datasetId/download and streams the
// artifact body directly.
func (h *DatasetHandler) Download(c *fiber.Ctx) error {
	datasetID, err := paramID(c, "datasetId")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	dataset, err := h.service.Download(c.Context(), datasetID, middleware.GetOrganizationID(c))
	if err != nil {
		return serviceError(c, err)
	}

	c.Set(fiber.HeaderContentType, service.ContentType(dataset.Format))
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="dataset-%d.%s"`, dataset.ID, dataset.Format))
	return c.Send(dataset.Content)
}

// Delete handles DELETE /api/datasets/:datasetId
func (h *DatasetHandler) Delete(c *fiber.Ctx) error {
	datasetID, err := paramID(c, "datasetId")
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	if err := h.service.Delete(c.Context(), datasetID, middleware.GetOrganizationID(c)); err != nil {
		return serviceError(c, err)
	}
	return response.NoContent(c)
}
