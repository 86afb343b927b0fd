package handler

import (
	"errors"
	"io"
	"net/http"

	"convene/internal/middleware"
	"convene/internal/models"
	"convene/internal/repository"

	"github.com/gin-gonic/gin"
)

// CreateRoom creates a fresh room with a generated id and adds the
// caller as its first member.
func CreateRoom(rooms *repository.RoomRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.GetUser(c)
		var req struct {
			DisplayName string `json:"display_name"`
			Private     bool   `json:"private"`
		}
		// the body is optional; an unnamed public room is the default
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		room := &models.Room{DisplayName: req.DisplayName, Private: req.Private}
		if err := rooms.Create(room); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
			return
		}
		if _, err := rooms.AddMember(room.ID, user.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"id":           room.ID,
			"display_name": room.Name(),
			"private":      room.Private,
		})
	}
}
