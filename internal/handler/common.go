package handler

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/veildata/api/internal/service"
	"github.com/veildata/api/pkg/response"
)

// formatValidationErrors converts validator errors into envelope details.
func formatValidationErrors(err error) []map[string]string {
	var details []map[string]string
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			details = append(details, map[string]string{
				"field": fe.Field(),
				"rule":  fe.Tag(),
			})
		}
	}
	return details
}

// serviceError maps the service error taxonomy onto the response envelope.
func serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return response.NotFound(c, "Resource not found")
	case errors.Is(err, service.ErrForbidden):
		return response.Forbidden(c, "Access denied")
	case errors.Is(err, service.ErrUnprocessable):
		return response.Unprocessable(c, err.Error())
	case errors.Is(err, service.ErrConflict):
		return response.Conflict(c, err.Error())
	case errors.Is(err, service.ErrInvalidState):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		return response.Unauthorized(c, "Invalid email or password")
	case errors.Is(err, service.ErrEmailTaken):
		return response.Conflict(c, "Email already registered")
	default:
		return response.ServiceError(c, "Unexpected error")
	}
}

// paramID parses a positive integer path parameter.
func paramID(c *fiber.Ctx, name string) (uint, error) {
	v, err := c.ParamsInt(name)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return uint(v), nil
}

// pageFromQuery reads page/limit query parameters with defaults.
func pageFromQuery(c *fiber.Ctx) service.Page {
	return service.NewPage(c.QueryInt("page", 1), c.QueryInt("limit", 20))
}
