package models

import "time"

// Place is a candidate meeting spot saved to a room.
type Place struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RoomID    string    `gorm:"size:36;not null;uniqueIndex:idx_place_room_coords" json:"room_id"`
	Lat       float64   `gorm:"type:decimal(10,8);not null;uniqueIndex:idx_place_room_coords" json:"lat"`
	Lng       float64   `gorm:"type:decimal(11,8);not null;uniqueIndex:idx_place_room_coords" json:"lng"`
	PlaceID   string    `gorm:"size:255;not null" json:"place_id"` // external place identifier
	LastSaved time.Time `json:"last_saved"`
	CreatedAt time.Time `json:"created_at"`

	Room  Room   `gorm:"foreignKey:RoomID" json:"-"`
	Votes []Vote `gorm:"foreignKey:PlaceRef" json:"-"`
}

func (Place) TableName() string {
	return "places"
}

// Vote is one member's pick within a room; the latest vote wins.
type Vote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RoomID    string    `gorm:"size:36;not null;uniqueIndex:idx_vote_room_user" json:"room_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_vote_room_user" json:"user_id"`
	PlaceRef  uint      `gorm:"not null;index" json:"place_ref"` // Place.ID
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Room  Room  `gorm:"foreignKey:RoomID" json:"-"`
	User  User  `gorm:"foreignKey:UserID" json:"-"`
	Place Place `gorm:"foreignKey:PlaceRef" json:"-"`
}

func (Vote) TableName() string {
	return "votes"
}
