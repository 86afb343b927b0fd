package repository

import (
	"errors"
	"time"

	"convene/internal/models"

	"gorm.io/gorm"
)

type PlaceRepository struct {
	db *gorm.DB
}

func NewPlaceRepository(db *gorm.DB) *PlaceRepository {
	return &PlaceRepository{db: db}
}

// Upsert writes a place keyed by (room, lat, lng). touch controls whether
// last_saved moves; background place-id refreshes keep the old ranking.
func (r *PlaceRepository) Upsert(roomID string, lat, lng float64, placeID string, touch bool) (*models.Place, error) {
	var p models.Place
	err := r.db.Where("room_id = ? AND lat = ? AND lng = ?", roomID, lat, lng).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		p = models.Place{RoomID: roomID, Lat: lat, Lng: lng, PlaceID: placeID, LastSaved: time.Now().UTC()}
		if err := r.db.Create(&p).Error; err != nil {
			return nil, err
		}
		return &p, nil
	}
	if err != nil {
		return nil, err
	}
	p.PlaceID = placeID
	if touch {
		p.LastSaved = time.Now().UTC()
	}
	if err := r.db.Save(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PlaceRepository) GetByPlaceID(roomID, placeID string) (*models.Place, error) {
	var p models.Place
	err := r.db.Where("room_id = ? AND place_id = ?", roomID, placeID).First(&p).Error
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// UpsertVote records the member's pick, replacing any previous vote in
// the room (one vote per member, last one wins).
func (r *PlaceRepository) UpsertVote(roomID string, userID, placeRef uint) error {
	var v models.Vote
	err := r.db.Where("room_id = ? AND user_id = ?", roomID, userID).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.Create(&models.Vote{RoomID: roomID, UserID: userID, PlaceRef: placeRef}).Error
	}
	if err != nil {
		return err
	}
	v.PlaceRef = placeRef
	return r.db.Save(&v).Error
}

// RankedPlace is one row of the vote-ranked place listing.
type RankedPlace struct {
	Ref          uint      `json:"-"`
	PlaceID      string    `json:"place_id"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	TotalVotes   int       `json:"total_votes"`
	UserVotedFor bool      `json:"user_voted_for"`
	LastSaved    time.Time `json:"-"`
}

// RankedByRoom lists places ordered by (viewer voted for it, vote count,
// recency). Grouping includes the viewer-vote flag, so one place can
// surface twice when both the viewer and others voted for it; the
// coordinator merges that duplicate.
func (r *PlaceRepository) RankedByRoom(roomID string, userID uint, limit int) ([]RankedPlace, error) {
	var rows []RankedPlace
	err := r.db.Table("places").
		Select("places.id AS ref, places.place_id, places.lat, places.lng, places.last_saved, "+
			"COUNT(votes.id) AS total_votes, "+
			"CASE WHEN votes.user_id = ? THEN 1 ELSE 0 END AS user_voted_for", userID).
		Joins("LEFT JOIN votes ON votes.place_ref = places.id").
		Where("places.room_id = ?", roomID).
		Group("places.id").
		Group("user_voted_for").
		Order("user_voted_for DESC, total_votes DESC, places.last_saved DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}
