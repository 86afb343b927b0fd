package models

import "time"

// Intersection is the persisted "reachable by all" area for a room. Only
// the folded result is stored; per-member isochrones are transient.
type Intersection struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RoomID      string    `gorm:"size:36;not null;uniqueIndex" json:"room_id"`
	Type        string    `gorm:"size:20;not null" json:"type"` // Polygon | MultiPolygon
	Coordinates string    `gorm:"type:text;not null" json:"coordinates"`
	CentroidLat float64   `json:"centroid_lat"`
	CentroidLng float64   `json:"centroid_lng"`
	UpdatedAt   time.Time `json:"updated_at"`

	Room Room `gorm:"foreignKey:RoomID" json:"-"`
}

func (Intersection) TableName() string {
	return "intersections"
}
