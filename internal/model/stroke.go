package model

import (
	"time"
)

// Stroke is one ink gesture: width, RGBA color and an ordered point path.
// Strokes are append-only; the id doubles as the resume cursor for the
// room's event stream (strictly increasing in commit order within a room).
type Stroke struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID    int64     `gorm:"not null;index:idx_strokes_room_id" json:"room_id"`
	Width     int       `gorm:"not null" json:"width"`
	Red       int       `gorm:"not null" json:"red"`
	Green     int       `gorm:"not null" json:"green"`
	Blue      int       `gorm:"not null" json:"blue"`
	Alpha     float64   `gorm:"not null" json:"alpha"`
	CreatedAt time.Time `gorm:"autoCreateTime:micro" json:"created_at"`

	// Hydrated separately from the points table.
	Points []Point `gorm:"-" json:"points"`
}

func (Stroke) TableName() string {
	return "strokes"
}

// Point is a single coordinate on a stroke's path, owned exclusively by
// its stroke and created atomically with it.
type Point struct {
	ID       int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	StrokeID int64   `gorm:"not null;index:idx_points_stroke_id" json:"stroke_id"`
	X        float64 `gorm:"not null" json:"x"`
	Y        float64 `gorm:"not null" json:"y"`
}

func (Point) TableName() string {
	return "points"
}
