// Package stream fans committed strokes out to live room subscribers.
// The write path publishes a stroke only after its transaction commits
// and holds a per-room lock across the commit and the publish, so each
// subscriber channel carries a room's strokes in ascending id order.
package stream

import (
	"log"
	"sync"

	"github.com/arosh/isucon6-final/internal/model"
)

// Hub manages the per-room subscriber sets.
type Hub struct {
	mu     sync.Mutex
	rooms  map[int64]map[*Subscriber]struct{}
	buffer int
}

// Subscriber receives a room's committed strokes. A subscriber that
// stops draining is evicted: its channel is closed and it must catch up
// from the store before resubscribing.
type Subscriber struct {
	roomID    int64
	ch        chan model.Stroke
	hub       *Hub
	closeOnce sync.Once
}

// NewHub builds a Hub. buffer is the per-subscriber channel capacity.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		rooms:  make(map[int64]map[*Subscriber]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber for the room.
func (h *Hub) Subscribe(roomID int64) *Subscriber {
	sub := &Subscriber{
		roomID: roomID,
		ch:     make(chan model.Stroke, h.buffer),
		hub:    h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[roomID]
	if !ok {
		subs = make(map[*Subscriber]struct{})
		h.rooms[roomID] = subs
	}
	subs[sub] = struct{}{}
	return sub
}

// Publish delivers a committed stroke to every subscriber of its room.
// Subscribers whose buffers are full are evicted rather than blocked on.
func (h *Hub) Publish(stroke model.Stroke) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.rooms[stroke.RoomID] {
		select {
		case sub.ch <- stroke:
		default:
			log.Printf("[Stream] Evicting slow subscriber in room %d", stroke.RoomID)
			h.removeLocked(sub)
			sub.closeOnce.Do(func() { close(sub.ch) })
		}
	}
}

func (h *Hub) removeLocked(sub *Subscriber) {
	subs, ok := h.rooms[sub.roomID]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.rooms, sub.roomID)
	}
}

// Strokes is the subscriber's delivery channel. It is closed when the
// subscriber is evicted or closed.
func (s *Subscriber) Strokes() <-chan model.Stroke {
	return s.ch
}

// Close unregisters the subscriber and releases its channel.
func (s *Subscriber) Close() {
	s.hub.mu.Lock()
	s.hub.removeLocked(s)
	s.hub.mu.Unlock()
	s.closeOnce.Do(func() { close(s.ch) })
}
