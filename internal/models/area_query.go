package models

import "time"

// AreaQuery remembers a member's last place-search text per room so the
// search box can be restored across sessions.
type AreaQuery struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_area_query_user_room" json:"user_id"`
	RoomID    string    `gorm:"size:36;not null;uniqueIndex:idx_area_query_user_room" json:"room_id"`
	Query     string    `gorm:"size:512" json:"query"`
	UpdatedAt time.Time `json:"updated_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
	Room Room `gorm:"foreignKey:RoomID" json:"-"`
}

func (AreaQuery) TableName() string {
	return "area_queries"
}
