package repository

import (
	"errors"

	"convene/internal/models"

	"gorm.io/gorm"
)

type IntersectionRepository struct {
	db *gorm.DB
}

func NewIntersectionRepository(db *gorm.DB) *IntersectionRepository {
	return &IntersectionRepository{db: db}
}

// Upsert replaces the room's stored intersection.
func (r *IntersectionRepository) Upsert(in *models.Intersection) error {
	var existing models.Intersection
	err := r.db.Where("room_id = ?", in.RoomID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.Create(in).Error
	}
	if err != nil {
		return err
	}
	in.ID = existing.ID
	return r.db.Save(in).Error
}

func (r *IntersectionRepository) GetByRoom(roomID string) (*models.Intersection, error) {
	var in models.Intersection
	if err := r.db.Where("room_id = ?", roomID).First(&in).Error; err != nil {
		return nil, translate(err)
	}
	return &in, nil
}

func (r *IntersectionRepository) DeleteByRoom(roomID string) error {
	return r.db.Where("room_id = ?", roomID).Delete(&models.Intersection{}).Error
}
