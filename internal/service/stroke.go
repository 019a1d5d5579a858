package service

import (
	"context"
	"sync"

	"github.com/arosh/isucon6-final/internal/cache"
	"github.com/arosh/isucon6-final/internal/model"
	"github.com/arosh/isucon6-final/internal/render"
	"github.com/arosh/isucon6-final/internal/store"
	"github.com/arosh/isucon6-final/internal/stream"
)

// StrokeService is the write path coordinator: it validates a stroke
// submission, appends it atomically, invalidates the derived views and
// only then acknowledges, so a successful submit is visible to the very
// next read.
type StrokeService struct {
	store  store.Store
	cache  *cache.RoomCache
	hub    *stream.Hub
	render *render.Invalidator

	mu        sync.Mutex
	roomLocks map[int64]*sync.Mutex
}

// NewStrokeService builds a StrokeService.
func NewStrokeService(st store.Store, ca *cache.RoomCache, hub *stream.Hub, re *render.Invalidator) *StrokeService {
	return &StrokeService{
		store:     st,
		cache:     ca,
		hub:       hub,
		render:    re,
		roomLocks: make(map[int64]*sync.Mutex),
	}
}

// roomLock returns the room's publish-order lock.
func (s *StrokeService) roomLock(roomID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.roomLocks[roomID]
	if !ok {
		l = &sync.Mutex{}
		s.roomLocks[roomID] = l
	}
	return l
}

// Submit persists a new stroke for the room on behalf of the credential.
// Returns store.ErrRoomNotFound for a missing room, ErrInvalidStroke for
// a malformed payload and store.ErrNotOwner when a non-owner tries to
// draw the room's first stroke.
func (s *StrokeService) Submit(ctx context.Context, roomID, tokenID int64, stroke model.Stroke, points []model.Point) (*model.Stroke, error) {
	if _, err := s.store.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	if stroke.Width <= 0 || len(points) == 0 {
		return nil, ErrInvalidStroke
	}

	// The hub must see a room's strokes in commit order. The database
	// serializes the commits themselves, but its room lock is released at
	// commit, so the append and the publish run under one per-room lock
	// here.
	l := s.roomLock(roomID)
	l.Lock()
	defer l.Unlock()

	created, err := s.store.AppendStroke(ctx, roomID, tokenID, stroke, points)
	if err != nil {
		// Nothing committed, so the caches are still valid.
		return nil, err
	}

	s.render.InvalidateRoom(roomID)
	if err := s.cache.InvalidateRoom(ctx, roomID); err != nil {
		return nil, err
	}
	if err := s.cache.InvalidateRoomList(ctx); err != nil {
		return nil, err
	}

	s.hub.Publish(*created)
	return created, nil
}
