package repository

import (
	"convene/internal/models"

	"gorm.io/gorm"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(m *models.Message) error {
	return r.db.Create(m).Error
}

// Latest returns up to limit newest messages for a room, newest first,
// with the sender preloaded.
func (r *MessageRepository) Latest(roomID string, limit int) ([]models.Message, error) {
	var list []models.Message
	err := r.db.Preload("User").
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Limit(limit).
		Find(&list).Error
	return list, err
}
