package model

import (
	"time"
)

// Room is a shared canvas. Rooms are created once and never mutated.
type Room struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string    `gorm:"not null" json:"name"`
	CanvasWidth  int       `gorm:"not null" json:"canvas_width"`
	CanvasHeight int       `gorm:"not null" json:"canvas_height"`
	CreatedAt    time.Time `gorm:"autoCreateTime:micro" json:"created_at"`

	// Hydrated fields, not columns.
	Strokes      []Stroke `gorm:"-" json:"strokes"`
	StrokeCount  int      `gorm:"-" json:"stroke_count"`
	WatcherCount int      `gorm:"-" json:"watcher_count"`
}

func (Room) TableName() string {
	return "rooms"
}

// RoomOwner records which credential created a room. Only the owner may
// draw the room's first stroke.
type RoomOwner struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID    int64     `gorm:"not null;uniqueIndex:idx_room_owner" json:"room_id"`
	TokenID   int64     `gorm:"not null;uniqueIndex:idx_room_owner" json:"token_id"`
	CreatedAt time.Time `gorm:"autoCreateTime:micro" json:"created_at"`
}

func (RoomOwner) TableName() string {
	return "room_owners"
}
