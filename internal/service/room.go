package service

import (
	"context"
	"log"

	"github.com/arosh/isucon6-final/internal/cache"
	"github.com/arosh/isucon6-final/internal/model"
	"github.com/arosh/isucon6-final/internal/presence"
	"github.com/arosh/isucon6-final/internal/store"
)

// roomListLimit caps the cross-room listing.
const roomListLimit = 100

// RoomService serves room reads through the materialized cache and
// handles room creation.
type RoomService struct {
	store    store.Store
	cache    *cache.RoomCache
	presence *presence.Tracker
}

// NewRoomService builds a RoomService.
func NewRoomService(st store.Store, ca *cache.RoomCache, pr *presence.Tracker) *RoomService {
	return &RoomService{store: st, cache: ca, presence: pr}
}

// Create inserts a room owned by the credential and invalidates the
// listing cache before acknowledging.
func (s *RoomService) Create(ctx context.Context, name string, canvasWidth, canvasHeight int, tokenID int64) (*model.Room, error) {
	if name == "" || canvasWidth <= 0 || canvasHeight <= 0 {
		return nil, ErrInvalidRoom
	}
	room, err := s.store.CreateRoom(ctx, name, canvasWidth, canvasHeight, tokenID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.InvalidateRoomList(ctx); err != nil {
		return nil, err
	}
	return room, nil
}

// List returns the top rooms by most recent stroke, read through the
// listing cache.
func (s *RoomService) List(ctx context.Context) ([]model.Room, error) {
	rooms, hit, err := s.cache.GetRoomList(ctx)
	if err != nil {
		log.Printf("[Room] Listing cache read failed, falling back to store: %v", err)
	} else if hit {
		return rooms, nil
	}

	rooms, err = s.store.ListRooms(ctx, roomListLimit)
	if err != nil {
		return nil, err
	}
	if err := s.cache.PutRoomList(ctx, rooms); err != nil {
		log.Printf("[Room] Listing cache write failed: %v", err)
	}
	return rooms, nil
}

// Strokes returns the room's full hydrated stroke history, read through
// the room cache. On a miss the history is rebuilt from the store with
// one stroke query and one joined point query.
func (s *RoomService) Strokes(ctx context.Context, roomID int64) ([]model.Stroke, error) {
	strokes, hit, err := s.cache.GetStrokes(ctx, roomID)
	if err != nil {
		log.Printf("[Room] Stroke cache read failed for room %d, falling back to store: %v", roomID, err)
	} else if hit {
		return strokes, nil
	}

	strokes, err = s.hydrateStrokes(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.PutStrokes(ctx, roomID, strokes); err != nil {
		log.Printf("[Room] Stroke cache write failed for room %d: %v", roomID, err)
	}
	return strokes, nil
}

// StrokesAfter returns the room's hydrated strokes with id > afterID in
// ascending order. This is the stream resume backlog; afterID is the
// exclusive cursor of the last stroke the client processed.
func (s *RoomService) StrokesAfter(ctx context.Context, roomID, afterID int64) ([]model.Stroke, error) {
	strokes, err := s.Strokes(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if afterID <= 0 {
		return strokes, nil
	}
	backlog := make([]model.Stroke, 0, len(strokes))
	for _, stroke := range strokes {
		if stroke.ID > afterID {
			backlog = append(backlog, stroke)
		}
	}
	return backlog, nil
}

// Get fetches a room without strokes, mapping absence to
// store.ErrRoomNotFound.
func (s *RoomService) Get(ctx context.Context, roomID int64) (*model.Room, error) {
	return s.store.GetRoom(ctx, roomID)
}

// Snapshot returns the room hydrated with its full stroke history and
// the live watcher count.
func (s *RoomService) Snapshot(ctx context.Context, roomID int64) (*model.Room, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	strokes, err := s.Strokes(ctx, roomID)
	if err != nil {
		return nil, err
	}
	room.Strokes = strokes
	room.StrokeCount = len(strokes)

	count, err := s.presence.Count(ctx, roomID)
	if err != nil {
		log.Printf("[Room] Watcher count failed for room %d: %v", roomID, err)
		count = 0
	}
	room.WatcherCount = count
	return room, nil
}

// WatcherCount returns the room's live watcher count.
func (s *RoomService) WatcherCount(ctx context.Context, roomID int64) (int, error) {
	return s.presence.Count(ctx, roomID)
}

// Heartbeat marks the credential as watching the room.
func (s *RoomService) Heartbeat(ctx context.Context, roomID, tokenID int64) error {
	return s.presence.Heartbeat(ctx, roomID, tokenID)
}

// hydrateStrokes rebuilds the room's stroke history from the store:
// strokes and points are each fetched in one pass, then points are
// grouped by stroke id and attached in order.
func (s *RoomService) hydrateStrokes(ctx context.Context, roomID int64) ([]model.Stroke, error) {
	strokes, err := s.store.ListStrokes(ctx, roomID, 0)
	if err != nil {
		return nil, err
	}
	points, err := s.store.ListPoints(ctx, roomID, 0)
	if err != nil {
		return nil, err
	}

	grouped := make(map[int64][]model.Point, len(strokes))
	for _, point := range points {
		grouped[point.StrokeID] = append(grouped[point.StrokeID], point)
	}
	for i := range strokes {
		pts := grouped[strokes[i].ID]
		if pts == nil {
			pts = []model.Point{}
		}
		strokes[i].Points = pts
	}
	return strokes, nil
}
