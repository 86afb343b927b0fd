package repository

import (
	"errors"

	"convene/internal/models"

	"gorm.io/gorm"
)

type RoomRepository struct {
	db *gorm.DB
}

func NewRoomRepository(db *gorm.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// GetOrCreate fetches a room by id, creating an empty public one when it
// does not exist yet. Connecting to an unknown room id creates the room.
func (r *RoomRepository) GetOrCreate(id string) (*models.Room, error) {
	var room models.Room
	err := r.db.Where("id = ?", id).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		room = models.Room{ID: id}
		if err := r.db.Create(&room).Error; err != nil {
			return nil, err
		}
		return &room, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// Create stores a new room; an empty id gets a generated uuid.
func (r *RoomRepository) Create(room *models.Room) error {
	return r.db.Create(room).Error
}

func (r *RoomRepository) Get(id string) (*models.Room, error) {
	var room models.Room
	if err := r.db.Where("id = ?", id).First(&room).Error; err != nil {
		return nil, translate(err)
	}
	return &room, nil
}

func (r *RoomRepository) UpdateDisplayName(roomID, name string) error {
	return r.db.Model(&models.Room{}).Where("id = ?", roomID).Update("display_name", name).Error
}

func (r *RoomRepository) UpdatePrivacy(roomID string, private bool) error {
	return r.db.Model(&models.Room{}).Where("id = ?", roomID).Update("private", private).Error
}

func (r *RoomRepository) Members(roomID string) ([]models.User, error) {
	var users []models.User
	err := r.db.
		Joins("JOIN room_members ON room_members.user_id = users.id").
		Where("room_members.room_id = ?", roomID).
		Find(&users).Error
	return users, err
}

func (r *RoomRepository) IsMember(roomID string, userID uint) (bool, error) {
	var count int64
	err := r.db.Table("room_members").
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	return count > 0, err
}

// AddMember is idempotent; it reports whether the user was newly added.
func (r *RoomRepository) AddMember(roomID string, userID uint) (bool, error) {
	member, err := r.IsMember(roomID, userID)
	if err != nil {
		return false, err
	}
	if member {
		return false, nil
	}
	err = r.db.Exec("INSERT INTO room_members (room_id, user_id) VALUES (?, ?)", roomID, userID).Error
	return err == nil, err
}

func (r *RoomRepository) RemoveMember(roomID string, userID uint) error {
	return r.db.Exec("DELETE FROM room_members WHERE room_id = ? AND user_id = ?", roomID, userID).Error
}

// RoomIDsOfUser is the member→rooms edge of the membership graph.
func (r *RoomRepository) RoomIDsOfUser(userID uint) ([]string, error) {
	var ids []string
	err := r.db.Table("room_members").
		Where("user_id = ?", userID).
		Pluck("room_id", &ids).Error
	return ids, err
}

// MembersMissingBubbles returns room members who have not set a location
// bubble in the room yet.
func (r *RoomRepository) MembersMissingBubbles(roomID string) ([]models.User, error) {
	var users []models.User
	err := r.db.
		Joins("JOIN room_members ON room_members.user_id = users.id").
		Where("room_members.room_id = ?", roomID).
		Where("users.id NOT IN (?)",
			r.db.Model(&models.LocationBubble{}).Select("user_id").Where("room_id = ?", roomID)).
		Find(&users).Error
	return users, err
}
