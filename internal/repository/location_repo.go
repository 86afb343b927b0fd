package repository

import (
	"errors"

	"convene/internal/models"

	"gorm.io/gorm"
)

type LocationRepository struct {
	db *gorm.DB
}

func NewLocationRepository(db *gorm.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

// UpsertBubble writes the (user, room) bubble, last write wins. Reports
// whether the row was newly created. Model hooks run on both paths, so a
// bad budget or region rejects the write here.
func (r *LocationRepository) UpsertBubble(b *models.LocationBubble) (bool, error) {
	var existing models.LocationBubble
	err := r.db.Where("user_id = ? AND room_id = ?", b.UserID, b.RoomID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, r.db.Create(b).Error
	}
	if err != nil {
		return false, err
	}
	b.ID = existing.ID
	b.CreatedAt = existing.CreatedAt
	return false, r.db.Save(b).Error
}

func (r *LocationRepository) GetBubble(userID uint, roomID string) (*models.LocationBubble, error) {
	var b models.LocationBubble
	err := r.db.Where("user_id = ? AND room_id = ?", userID, roomID).First(&b).Error
	if err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

// ListByRoom returns bubbles in stable id order so intersection folding
// is deterministic.
func (r *LocationRepository) ListByRoom(roomID string) ([]models.LocationBubble, error) {
	var list []models.LocationBubble
	err := r.db.Where("room_id = ?", roomID).Order("id ASC").Find(&list).Error
	return list, err
}

func (r *LocationRepository) DeleteBubble(userID uint, roomID string) error {
	return r.db.Where("user_id = ? AND room_id = ?", userID, roomID).
		Delete(&models.LocationBubble{}).Error
}

func (r *LocationRepository) UpdateBubblePlaceID(id uint, placeID string) error {
	return r.db.Model(&models.LocationBubble{}).Where("id = ?", id).
		Update("place_id", placeID).Error
}

func (r *LocationRepository) UpsertAreaQuery(userID uint, roomID, query string) error {
	var existing models.AreaQuery
	err := r.db.Where("user_id = ? AND room_id = ?", userID, roomID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.Create(&models.AreaQuery{UserID: userID, RoomID: roomID, Query: query}).Error
	}
	if err != nil {
		return err
	}
	existing.Query = query
	return r.db.Save(&existing).Error
}

func (r *LocationRepository) GetAreaQuery(userID uint, roomID string) (string, error) {
	var q models.AreaQuery
	err := r.db.Where("user_id = ? AND room_id = ?", userID, roomID).First(&q).Error
	if err != nil {
		return "", translate(err)
	}
	return q.Query, nil
}
