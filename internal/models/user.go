package models

import (
	"strings"
	"time"
)

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UID          string    `gorm:"uniqueIndex;size:128;not null" json:"uid"` // identity-provider uid
	FirstName    string    `gorm:"size:150" json:"first_name"`
	LastName     string    `gorm:"size:150" json:"last_name"`
	Email        string    `gorm:"size:255" json:"email"`
	PhoneNumber  string    `gorm:"size:17" json:"phone_number"`
	DisplayName  string    `gorm:"size:150" json:"display_name"`
	LastLoggedIn time.Time `json:"last_logged_in"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Rooms []*Room `gorm:"many2many:room_members" json:"-"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// ResolveDisplayName falls through full name, email and phone before
// giving up and using the provider uid.
func (u *User) ResolveDisplayName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if full := u.FullName(); full != "" {
		return full
	}
	if u.Email != "" {
		return u.Email
	}
	if u.PhoneNumber != "" {
		return u.PhoneNumber
	}
	return u.UID
}
