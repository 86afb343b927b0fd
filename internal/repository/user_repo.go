package repository

import (
	"errors"
	"time"

	"convene/internal/models"

	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(id uint) (*models.User, error) {
	var u models.User
	if err := r.db.First(&u, id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *UserRepository) GetByUID(uid string) (*models.User, error) {
	var u models.User
	if err := r.db.Where("uid = ?", uid).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// UpsertByUID refreshes the identity-provider fields for a uid, creating
// the row on first sight.
func (r *UserRepository) UpsertByUID(uid string, firstName, lastName, email, phone string) (*models.User, error) {
	var u models.User
	err := r.db.Where("uid = ?", uid).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		u = models.User{UID: uid}
	} else if err != nil {
		return nil, err
	}
	u.FirstName = firstName
	u.LastName = lastName
	u.Email = email
	u.PhoneNumber = phone
	if err := r.db.Save(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) UpdateDisplayName(userID uint, name string) error {
	return r.db.Model(&models.User{}).Where("id = ?", userID).Update("display_name", name).Error
}

func (r *UserRepository) TouchLastLoggedIn(userID uint, at time.Time) error {
	return r.db.Model(&models.User{}).Where("id = ?", userID).Update("last_logged_in", at).Error
}
