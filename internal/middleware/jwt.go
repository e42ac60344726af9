package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campushive/backend/internal/auth"
	"github.com/campushive/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserRole is the key for user role in gin context.
	ContextUserRole = "user_role"
	// ContextUserName is the key for the user's display name in gin context.
	ContextUserName = "user_name"
	// ContextUserEmail is the key for user email in gin context.
	ContextUserEmail = "user_email"
)

// Auth returns a middleware that resolves the bearer credential through
// the role authority and sets the caller identity in context.
func Auth(authority *auth.Authority) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		identity, err := authority.Resolve(c.Request.Context(), parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, identity.UserID)
		c.Set(ContextUserRole, identity.Role)
		c.Set(ContextUserName, identity.Name)
		c.Set(ContextUserEmail, identity.Email)
		c.Next()
	}
}
