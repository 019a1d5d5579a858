// Package presence tracks how many credentials are currently watching a
// room. Watchers heartbeat while streaming and simply age out of the
// count after the freshness window; there is no disconnect signal, so the
// count is inherently approximate.
package presence

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tracker counts active watchers per room. Heartbeats land in a per-room
// sorted set scored by heartbeat time; counting trims aged entries and
// counts the remainder.
type Tracker struct {
	client *redis.Client
	window time.Duration
	now    func() time.Time
}

// NewTracker builds a Tracker on an existing Redis client. window is how
// long a watcher stays counted after its last heartbeat.
func NewTracker(client *redis.Client, window time.Duration) *Tracker {
	return &Tracker{
		client: client,
		window: window,
		now:    time.Now,
	}
}

func watchersKey(roomID int64) string {
	return "watchers:" + strconv.FormatInt(roomID, 10)
}

// Heartbeat records that the credential is watching the room right now.
// Idempotent; duplicated or reordered heartbeats only ever extend the
// watcher's freshness.
func (t *Tracker) Heartbeat(ctx context.Context, roomID, tokenID int64) error {
	key := watchersKey(roomID)
	err := t.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(t.now().UnixMicro()),
		Member: strconv.FormatInt(tokenID, 10),
	}).Err()
	if err != nil {
		return err
	}
	// Bound memory for abandoned rooms; active rooms keep refreshing this.
	return t.client.Expire(ctx, key, 10*t.window).Err()
}

// Count returns the number of distinct credentials whose last heartbeat
// for the room is within the freshness window.
func (t *Tracker) Count(ctx context.Context, roomID int64) (int, error) {
	key := watchersKey(roomID)
	cutoff := strconv.FormatInt(t.now().Add(-t.window).UnixMicro(), 10)

	// Trim entries at or past the window, then count what is left.
	if err := t.client.ZRemRangeByScore(ctx, key, "-inf", cutoff).Err(); err != nil {
		return 0, err
	}
	n, err := t.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
