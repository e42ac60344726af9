package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/campushive/backend/internal/models"
	"github.com/campushive/backend/pkg/response"
)

// RequireRole returns a middleware that allows only callers whose role
// ranks at or above min.
func RequireRole(min models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		roleVal, ok := c.Get(ContextUserRole)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		role, _ := roleVal.(models.Role)
		if !role.AtLeast(min) {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
