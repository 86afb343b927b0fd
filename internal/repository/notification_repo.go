package repository

import (
	"sort"
	"time"

	"convene/internal/models"

	"gorm.io/gorm"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(n *models.Notification) error {
	return r.db.Create(n).Error
}

// MarkAllRead flags every notification the user has in the room. Batch
// update, no hooks fire.
func (r *NotificationRepository) MarkAllRead(userID uint, roomID string) error {
	return r.db.Model(&models.Notification{}).
		Where("user_id = ? AND room_id = ?", userID, roomID).
		Update("read", true).Error
}

// ListLatestPerRoom reduces the user's notifications to the newest row
// per room, unread rooms first, newer first within each group.
func (r *NotificationRepository) ListLatestPerRoom(userID uint) ([]models.Notification, error) {
	var all []models.Notification
	err := r.db.
		Preload("Room").
		Preload("Message").
		Preload("Message.User").
		Preload("UserJoined").
		Preload("UserLeft").
		Preload("UserLocation").
		Preload("AddedPlace").
		Preload("VotedPlace").
		Preload("JoinRequest").
		Preload("JoinRequest.User").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&all).Error
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	latest := make([]models.Notification, 0, len(all))
	for _, n := range all {
		if seen[n.RoomID] {
			continue
		}
		seen[n.RoomID] = true
		latest = append(latest, n)
	}
	sort.SliceStable(latest, func(i, j int) bool {
		return latest[i].CreatedAt.After(latest[j].CreatedAt)
	})
	sort.SliceStable(latest, func(i, j int) bool {
		return !latest[i].Read && latest[j].Read
	})
	return latest, nil
}

// UnreadForRoom returns the user's unread rows in one room no newer than
// the cutoff; used for highlight hints on reconnect.
func (r *NotificationRepository) UnreadForRoom(userID uint, roomID string, cutoff time.Time) ([]models.Notification, error) {
	var list []models.Notification
	err := r.db.
		Where("user_id = ? AND room_id = ? AND read = ? AND created_at <= ?", userID, roomID, false, cutoff).
		Find(&list).Error
	return list, err
}

// DeleteForUserRoom clears a member's notification history for a room,
// used when they leave it.
func (r *NotificationRepository) DeleteForUserRoom(userID uint, roomID string) error {
	return r.db.Where("user_id = ? AND room_id = ?", userID, roomID).
		Delete(&models.Notification{}).Error
}
