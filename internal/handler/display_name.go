package handler

import (
	"net/http"

	"convene/internal/middleware"
	"convene/internal/repository"

	"github.com/gin-gonic/gin"
)

// GetDisplayName returns the member's resolved display name.
func GetDisplayName() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.GetUser(c)
		c.JSON(http.StatusOK, gin.H{"display_name": user.ResolveDisplayName()})
	}
}

// UpdateDisplayName sets the member's display name and echoes the
// resolved result back.
func UpdateDisplayName(users *repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.GetUser(c)
		var req struct {
			DisplayName string `json:"display_name"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := users.UpdateDisplayName(user.ID, req.DisplayName); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update display name"})
			return
		}
		user.DisplayName = req.DisplayName
		c.JSON(http.StatusOK, gin.H{"display_name": user.ResolveDisplayName()})
	}
}
