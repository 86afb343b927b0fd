package models

import (
	"fmt"
	"time"

	"convene/internal/domain"

	"gorm.io/gorm"
)

// Notification is a tagged union: exactly one of the payload references
// below may be set per row. The recipient is UserID.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	RoomID    string    `gorm:"size:36;not null;index" json:"room_id"`
	Read      bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time `json:"timestamp"`

	MessageID      *uint `json:"message_id"`
	UserJoinedID   *uint `json:"user_joined_id"`
	UserLeftID     *uint `json:"user_left_id"`
	JoinRequestID  *uint `json:"join_request_id"`
	NowPublic      bool  `gorm:"not null;default:false" json:"now_public"`
	NowPrivate     bool  `gorm:"not null;default:false" json:"now_private"`
	UserLocationID *uint `json:"user_location_id"`
	AddedPlaceID   *uint `json:"added_place_id"` // user who saved a place
	VotedPlaceID   *uint `json:"voted_place_id"` // user who voted

	User         User         `gorm:"foreignKey:UserID" json:"-"`
	Room         Room         `gorm:"foreignKey:RoomID" json:"-"`
	Message      *Message     `gorm:"foreignKey:MessageID" json:"-"`
	UserJoined   *User        `gorm:"foreignKey:UserJoinedID" json:"-"`
	UserLeft     *User        `gorm:"foreignKey:UserLeftID" json:"-"`
	JoinRequest  *JoinRequest `gorm:"foreignKey:JoinRequestID" json:"-"`
	UserLocation *User        `gorm:"foreignKey:UserLocationID" json:"-"`
	AddedPlace   *User        `gorm:"foreignKey:AddedPlaceID" json:"-"`
	VotedPlace   *User        `gorm:"foreignKey:VotedPlaceID" json:"-"`
}

func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) payloadCount() int {
	count := 0
	for _, set := range []bool{
		n.MessageID != nil,
		n.UserJoinedID != nil,
		n.UserLeftID != nil,
		n.JoinRequestID != nil,
		n.NowPublic,
		n.NowPrivate,
		n.UserLocationID != nil,
		n.AddedPlaceID != nil,
		n.VotedPlaceID != nil,
	} {
		if set {
			count++
		}
	}
	return count
}

// BeforeCreate rejects rows that do not carry exactly one payload.
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if c := n.payloadCount(); c != 1 {
		return fmt.Errorf("%w: notification must carry exactly one payload, got %d", domain.ErrValidation, c)
	}
	return nil
}
