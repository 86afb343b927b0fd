package models

import "time"

type JoinRequest struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_join_request_user_room" json:"user_id"`
	RoomID    string    `gorm:"size:36;not null;uniqueIndex:idx_join_request_user_room" json:"room_id"`
	CreatedAt time.Time `json:"timestamp"`

	User User `gorm:"foreignKey:UserID" json:"-"`
	Room Room `gorm:"foreignKey:RoomID" json:"-"`
}

func (JoinRequest) TableName() string {
	return "join_requests"
}
