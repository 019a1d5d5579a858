// Package storetest provides an in-memory Store for tests.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/arosh/isucon6-final/internal/model"
	"github.com/arosh/isucon6-final/internal/store"
)

// Fake is an in-memory store.Store with the same semantics as the gorm
// implementation: append-only, globally increasing ids, first-stroke
// ownership enforced atomically under the lock.
type Fake struct {
	mu         sync.Mutex
	nextToken  int64
	nextRoom   int64
	nextStroke int64
	nextPoint  int64
	rooms      map[int64]model.Room
	owners     map[int64]int64
	strokes    map[int64][]model.Stroke

	// AppendErr, when set, fails AppendStroke before anything is stored.
	AppendErr error
}

// NewFake builds an empty Fake.
func NewFake() *Fake {
	return &Fake{
		rooms:   make(map[int64]model.Room),
		owners:  make(map[int64]int64),
		strokes: make(map[int64][]model.Stroke),
	}
}

var _ store.Store = (*Fake)(nil)

func (f *Fake) CreateToken(ctx context.Context) (*model.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextToken++
	return &model.Token{ID: f.nextToken, CreatedAt: time.Now()}, nil
}

func (f *Fake) CreateRoom(ctx context.Context, name string, canvasWidth, canvasHeight int, tokenID int64) (*model.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextRoom++
	room := model.Room{
		ID:           f.nextRoom,
		Name:         name,
		CanvasWidth:  canvasWidth,
		CanvasHeight: canvasHeight,
		CreatedAt:    time.Now(),
		Strokes:      []model.Stroke{},
	}
	f.rooms[room.ID] = room
	f.owners[room.ID] = tokenID
	return &room, nil
}

func (f *Fake) GetRoom(ctx context.Context, roomID int64) (*model.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[roomID]
	if !ok {
		return nil, store.ErrRoomNotFound
	}
	room.Strokes = []model.Stroke{}
	return &room, nil
}

func (f *Fake) ListRooms(ctx context.Context, limit int) ([]model.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	type entry struct {
		room        model.Room
		maxStrokeID int64
	}
	var entries []entry
	for id, room := range f.rooms {
		strokes := f.strokes[id]
		if len(strokes) == 0 {
			continue
		}
		room.Strokes = []model.Stroke{}
		room.StrokeCount = len(strokes)
		entries = append(entries, entry{room: room, maxStrokeID: strokes[len(strokes)-1].ID})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].maxStrokeID > entries[j].maxStrokeID
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	rooms := make([]model.Room, 0, len(entries))
	for _, e := range entries {
		rooms = append(rooms, e.room)
	}
	return rooms, nil
}

func (f *Fake) ListStrokes(ctx context.Context, roomID, afterID int64) ([]model.Stroke, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []model.Stroke{}
	for _, stroke := range f.strokes[roomID] {
		if stroke.ID > afterID {
			s := stroke
			s.Points = nil
			result = append(result, s)
		}
	}
	return result, nil
}

func (f *Fake) ListPoints(ctx context.Context, roomID, afterID int64) ([]model.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []model.Point{}
	for _, stroke := range f.strokes[roomID] {
		if stroke.ID > afterID {
			result = append(result, stroke.Points...)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (f *Fake) IsRoomOwner(ctx context.Context, roomID, tokenID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owners[roomID] == tokenID, nil
}

func (f *Fake) AppendStroke(ctx context.Context, roomID, tokenID int64, stroke model.Stroke, points []model.Point) (*model.Stroke, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.rooms[roomID]; !ok {
		return nil, store.ErrRoomNotFound
	}
	if len(f.strokes[roomID]) == 0 && f.owners[roomID] != tokenID {
		return nil, store.ErrNotOwner
	}
	if f.AppendErr != nil {
		return nil, f.AppendErr
	}

	f.nextStroke++
	created := stroke
	created.ID = f.nextStroke
	created.RoomID = roomID
	created.CreatedAt = time.Now()
	created.Points = make([]model.Point, 0, len(points))
	for _, p := range points {
		f.nextPoint++
		p.ID = f.nextPoint
		p.StrokeID = created.ID
		created.Points = append(created.Points, p)
	}
	f.strokes[roomID] = append(f.strokes[roomID], created)

	result := created
	return &result, nil
}
