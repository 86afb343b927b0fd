package repository

import (
	"errors"

	"convene/internal/models"

	"gorm.io/gorm"
)

type JoinRequestRepository struct {
	db *gorm.DB
}

func NewJoinRequestRepository(db *gorm.DB) *JoinRequestRepository {
	return &JoinRequestRepository{db: db}
}

// GetOrCreate is idempotent per (user, room); reports whether a new row
// was created so callers only notify on the first request.
func (r *JoinRequestRepository) GetOrCreate(userID uint, roomID string) (*models.JoinRequest, bool, error) {
	var jr models.JoinRequest
	err := r.db.Where("user_id = ? AND room_id = ?", userID, roomID).First(&jr).Error
	if err == nil {
		return &jr, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	jr = models.JoinRequest{UserID: userID, RoomID: roomID}
	if err := r.db.Create(&jr).Error; err != nil {
		return nil, false, err
	}
	return &jr, true, nil
}

func (r *JoinRequestRepository) ListByRoom(roomID string) ([]models.JoinRequest, error) {
	var list []models.JoinRequest
	err := r.db.Preload("User").
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Find(&list).Error
	return list, err
}

func (r *JoinRequestRepository) DeleteByUserRoom(userID uint, roomID string) error {
	return r.db.Where("user_id = ? AND room_id = ?", userID, roomID).
		Delete(&models.JoinRequest{}).Error
}

func (r *JoinRequestRepository) DeleteByRoom(roomID string) error {
	return r.db.Where("room_id = ?", roomID).Delete(&models.JoinRequest{}).Error
}
