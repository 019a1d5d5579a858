package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arosh/isucon6-final/internal/model"
)

func TestPublishDeliversInOrder(t *testing.T) {
	hub := NewHub(8)
	sub := hub.Subscribe(1)
	defer sub.Close()

	hub.Publish(model.Stroke{ID: 1, RoomID: 1})
	hub.Publish(model.Stroke{ID: 2, RoomID: 1})
	hub.Publish(model.Stroke{ID: 3, RoomID: 1})

	assert.Equal(t, int64(1), (<-sub.Strokes()).ID)
	assert.Equal(t, int64(2), (<-sub.Strokes()).ID)
	assert.Equal(t, int64(3), (<-sub.Strokes()).ID)
}

func TestPublishIsScopedToRoom(t *testing.T) {
	hub := NewHub(8)
	sub1 := hub.Subscribe(1)
	defer sub1.Close()
	sub2 := hub.Subscribe(2)
	defer sub2.Close()

	hub.Publish(model.Stroke{ID: 5, RoomID: 2})

	select {
	case stroke := <-sub1.Strokes():
		t.Fatalf("room 1 subscriber received stroke %d from room 2", stroke.ID)
	default:
	}
	assert.Equal(t, int64(5), (<-sub2.Strokes()).ID)
}

func TestFanOutToMultipleSubscribers(t *testing.T) {
	hub := NewHub(8)
	subs := []*Subscriber{hub.Subscribe(1), hub.Subscribe(1), hub.Subscribe(1)}
	for _, sub := range subs {
		defer sub.Close()
	}

	hub.Publish(model.Stroke{ID: 9, RoomID: 1})
	for _, sub := range subs {
		assert.Equal(t, int64(9), (<-sub.Strokes()).ID)
	}
}

func TestSlowSubscriberIsEvicted(t *testing.T) {
	hub := NewHub(1)
	slow := hub.Subscribe(1)

	hub.Publish(model.Stroke{ID: 1, RoomID: 1})
	// Buffer full and nobody draining: this publish evicts the subscriber.
	hub.Publish(model.Stroke{ID: 2, RoomID: 1})

	stroke, ok := <-slow.Strokes()
	require.True(t, ok)
	assert.Equal(t, int64(1), stroke.ID)

	_, ok = <-slow.Strokes()
	assert.False(t, ok, "evicted subscriber's channel should be closed")

	// Eviction must not affect later subscribers.
	fresh := hub.Subscribe(1)
	defer fresh.Close()
	hub.Publish(model.Stroke{ID: 3, RoomID: 1})
	assert.Equal(t, int64(3), (<-fresh.Strokes()).ID)
}

func TestCloseStopsDelivery(t *testing.T) {
	hub := NewHub(8)
	sub := hub.Subscribe(1)
	sub.Close()

	_, ok := <-sub.Strokes()
	assert.False(t, ok)

	// Publishing after close must not panic.
	hub.Publish(model.Stroke{ID: 1, RoomID: 1})
}

func TestCloseIsIdempotent(t *testing.T) {
	hub := NewHub(8)
	sub := hub.Subscribe(1)
	sub.Close()
	sub.Close()
}
