package repository

import (
	"errors"

	"convene/internal/domain"

	"gorm.io/gorm"
)

// translate maps gorm's record-not-found onto the domain sentinel so
// callers can errors.Is against one error type.
func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}
