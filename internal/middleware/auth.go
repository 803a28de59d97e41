package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/veildata/api/internal/auth"
	"github.com/veildata/api/internal/model"
	"github.com/veildata/api/pkg/response"
)

// AuthMiddleware handles JWT authentication
type AuthMiddleware struct {
	jwtSecret string
}

func NewAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{jwtSecret: jwtSecret}
}

// Authenticate validates the bearer token and stores the caller identity in Locals.
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return response.Unauthorized(c, "Missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return response.Unauthorized(c, "Invalid authorization header format")
		}

		claims, err := auth.ValidateToken(parts[1], m.jwtSecret)
		if err != nil {
			return response.Unauthorized(c, "Invalid or expired token")
		}

		c.Locals("userId", claims.UserID)
		c.Locals("orgId", claims.OrganizationID)
		c.Locals("role", claims.Role)
		return c.Next()
	}
}

// GetUserID extracts the caller's user ID from context
func GetUserID(c *fiber.Ctx) uint {
	if userID, ok := c.Locals("userId").(uint); ok {
		return userID
	}
	return 0
}

// GetOrganizationID extracts the caller's organization ID from context
func GetOrganizationID(c *fiber.Ctx) uint {
	if orgID, ok := c.Locals("orgId").(uint); ok {
		return orgID
	}
	return 0
}

// GetRole extracts the caller's role from context
func GetRole(c *fiber.Ctx) model.Role {
	if role, ok := c.Locals("role").(model.Role); ok {
		return role
	}
	return ""
}
