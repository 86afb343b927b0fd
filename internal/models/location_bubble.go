package models

import (
	"fmt"
	"time"

	"convene/internal/domain"

	"gorm.io/gorm"
)

// LocationBubble is one member's starting point, travel mode and time
// budget within a room. One row per (user, room); writes are upserts.
type LocationBubble struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"not null;uniqueIndex:idx_bubble_user_room" json:"user_id"`
	RoomID         string    `gorm:"size:36;not null;uniqueIndex:idx_bubble_user_room" json:"room_id"`
	Address        string    `gorm:"size:512" json:"address"`
	Latitude       float64   `gorm:"type:decimal(10,8);not null" json:"latitude"`
	Longitude      float64   `gorm:"type:decimal(11,8);not null" json:"longitude"`
	Transportation string    `gorm:"size:20;not null" json:"transportation"`
	Hours          int       `gorm:"not null" json:"hours"`
	Minutes        int       `gorm:"not null" json:"minutes"`
	Region         string    `gorm:"size:50;not null" json:"region"`
	PlaceID        string    `gorm:"size:255" json:"place_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
	Room Room `gorm:"foreignKey:RoomID" json:"-"`
}

func (LocationBubble) TableName() string {
	return "location_bubbles"
}

// BudgetSeconds is the travel-time budget sent to the isochrone provider.
func (b *LocationBubble) BudgetSeconds() int {
	return b.Hours*3600 + b.Minutes*60
}

// BeforeSave enforces the budget, mode and region constraints on both
// create and upsert paths.
func (b *LocationBubble) BeforeSave(tx *gorm.DB) error {
	if s := b.BudgetSeconds(); s <= 0 || s > domain.MaxBudgetSeconds {
		return fmt.Errorf("%w: budget must be within (0, %ds], got %ds", domain.ErrValidation, domain.MaxBudgetSeconds, s)
	}
	if !domain.ValidTransportMode(b.Transportation) {
		return fmt.Errorf("%w: unknown transport mode %q", domain.ErrValidation, b.Transportation)
	}
	if !domain.ValidServiceRegion(b.Region) {
		return fmt.Errorf("%w: unknown service region %q", domain.ErrValidation, b.Region)
	}
	if b.Transportation == domain.TransportTransit && !domain.RegionSupportsTransit(b.Region) {
		return fmt.Errorf("%w: region %q does not support transit", domain.ErrValidation, b.Region)
	}
	return nil
}
