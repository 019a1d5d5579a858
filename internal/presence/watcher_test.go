package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) (*Tracker, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewTracker(client, 3*time.Second)
	tracker.now = func() time.Time { return now }
	return tracker, &now
}

func TestWatcherCountedInsideWindow(t *testing.T) {
	tracker, now := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.Heartbeat(ctx, 1, 10))

	*now = now.Add(2900 * time.Millisecond)
	count, err := tracker.Count(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestWatcherExpiresPastWindow(t *testing.T) {
	tracker, now := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.Heartbeat(ctx, 1, 10))

	*now = now.Add(3100 * time.Millisecond)
	count, err := tracker.Count(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestHeartbeatIsIdempotent(t *testing.T) {
	tracker, now := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.Heartbeat(ctx, 1, 10))
	require.NoError(t, tracker.Heartbeat(ctx, 1, 10))
	*now = now.Add(time.Second)
	require.NoError(t, tracker.Heartbeat(ctx, 1, 10))

	count, err := tracker.Count(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestHeartbeatExtendsFreshness(t *testing.T) {
	tracker, now := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.Heartbeat(ctx, 1, 10))
	*now = now.Add(2 * time.Second)
	require.NoError(t, tracker.Heartbeat(ctx, 1, 10))

	// 4s after the first heartbeat but only 2s after the refresh.
	*now = now.Add(2 * time.Second)
	count, err := tracker.Count(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDistinctCredentialsCounted(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.Heartbeat(ctx, 1, 10))
	require.NoError(t, tracker.Heartbeat(ctx, 1, 11))
	require.NoError(t, tracker.Heartbeat(ctx, 1, 12))

	count, err := tracker.Count(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRoomsAreIndependent(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.Heartbeat(ctx, 1, 10))
	require.NoError(t, tracker.Heartbeat(ctx, 2, 10))
	require.NoError(t, tracker.Heartbeat(ctx, 2, 11))

	count, err := tracker.Count(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = tracker.Count(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCountOnEmptyRoom(t *testing.T) {
	tracker, _ := newTestTracker(t)

	count, err := tracker.Count(context.Background(), 99)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
