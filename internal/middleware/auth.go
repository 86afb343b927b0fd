package middleware

import (
	"net/http"
	"strings"

	"convene/internal/auth"
	"convene/internal/models"

	"github.com/gin-gonic/gin"
)

// AuthRequired verifies the bearer token against the identity provider
// and sets the resolved member in context.
func AuthRequired(resolver *auth.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		user, err := resolver.ResolveMember(c.Request.Context(), parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set("user", user)
		c.Next()
	}
}

// GetUser returns the authenticated member from context (must be used
// after AuthRequired).
func GetUser(c *gin.Context) *models.User {
	v, _ := c.Get("user")
	if v == nil {
		return nil
	}
	return v.(*models.User)
}
