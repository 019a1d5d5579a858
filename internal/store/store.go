// Package store is the authoritative append-only stroke log. Rooms,
// strokes and points are insert-only; stroke ids are assigned in commit
// order and are strictly increasing within a room.
package store

import (
	"context"
	"errors"

	"github.com/arosh/isucon6-final/internal/model"
)

var (
	// ErrRoomNotFound is returned when the referenced room does not exist.
	ErrRoomNotFound = errors.New("room not found")
	// ErrNotOwner is returned when a credential other than the room's
	// creator tries to draw the room's first stroke.
	ErrNotOwner = errors.New("not the room owner")
)

// Store is the persistence contract consumed by the services. Implemented
// by DB (gorm/postgres) and by storetest.Fake in tests.
type Store interface {
	// CreateToken inserts a credential row and returns it.
	CreateToken(ctx context.Context) (*model.Token, error)

	// CreateRoom inserts a room and its owner record in one transaction.
	CreateRoom(ctx context.Context, name string, canvasWidth, canvasHeight int, tokenID int64) (*model.Room, error)

	// GetRoom fetches a room by id. Returns ErrRoomNotFound if absent.
	GetRoom(ctx context.Context, roomID int64) (*model.Room, error)

	// ListRooms returns up to limit rooms that have at least one stroke,
	// most recently drawn-in first, each with its stroke count.
	ListRooms(ctx context.Context, limit int) ([]model.Room, error)

	// ListStrokes returns the room's strokes with id > afterID, ascending,
	// without points.
	ListStrokes(ctx context.Context, roomID, afterID int64) ([]model.Stroke, error)

	// ListPoints returns the points of all strokes in the room with stroke
	// id > afterID, in point-id order.
	ListPoints(ctx context.Context, roomID, afterID int64) ([]model.Point, error)

	// IsRoomOwner reports whether tokenID created the room.
	IsRoomOwner(ctx context.Context, roomID, tokenID int64) (bool, error)

	// AppendStroke atomically persists a stroke and its points. The room
	// row is locked for the duration of the transaction, so the
	// first-stroke ownership check (ErrNotOwner) cannot race a concurrent
	// first stroke from another credential. Returns the stroke hydrated
	// with its points. Nothing is committed on error.
	AppendStroke(ctx context.Context, roomID, tokenID int64, stroke model.Stroke, points []model.Point) (*model.Stroke, error)
}
