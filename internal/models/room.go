package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Room struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"` // uuid
	DisplayName string    `gorm:"size:150" json:"display_name"`
	Private     bool      `gorm:"not null;default:false" json:"private"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Members []*User `gorm:"many2many:room_members" json:"-"`
}

func (Room) TableName() string {
	return "rooms"
}

// BeforeCreate assigns a fresh uuid when the caller did not pick an id.
func (r *Room) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Name returns the display name, defaulting to the room id string.
func (r *Room) Name() string {
	if r.DisplayName == "" {
		return r.ID
	}
	return r.DisplayName
}
