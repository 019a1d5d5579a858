// Package cache is the materialized room cache: a Redis-backed,
// read-through view of each room's hydrated strokes and of the cross-room
// listing. Entries are wholesale replaced or deleted, never mutated.
//
// Invalidation only deletes keys. A rebuild that began before an
// invalidation may still put a stale value back afterwards; that
// staleness lasts until the next write deletes the key again. This race
// is tolerated by design rather than locked around.
package cache

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arosh/isucon6-final/internal/model"
)

// entryVersion tags serialized cache entries. Entries written by an
// incompatible build deserialize as a miss instead of an error.
const entryVersion = 1

const roomListKey = "rooms"

func strokesKey(roomID int64) string {
	return "stroke:" + strconv.FormatInt(roomID, 10)
}

type strokesEnvelope struct {
	Version int            `json:"v"`
	Strokes []model.Stroke `json:"strokes"`
}

type roomListEnvelope struct {
	Version int          `json:"v"`
	Rooms   []model.Room `json:"rooms"`
}

// RoomCache holds the materialized room views in Redis.
type RoomCache struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection.
func New(addr, password string, db int) (*RoomCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Printf("[Cache] Connected to %s", addr)
	return &RoomCache{client: client}, nil
}

// NewWithClient wraps an existing Redis client. Used by tests.
func NewWithClient(client *redis.Client) *RoomCache {
	return &RoomCache{client: client}
}

// Client exposes the underlying connection pool so the presence tracker
// can share it.
func (c *RoomCache) Client() *redis.Client {
	return c.client
}

// GetStrokes returns the cached hydrated strokes for a room. The second
// return value reports a hit; a missing, unreadable or version-mismatched
// entry is a miss.
func (c *RoomCache) GetStrokes(ctx context.Context, roomID int64) ([]model.Stroke, bool, error) {
	val, err := c.client.Get(ctx, strokesKey(roomID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var env strokesEnvelope
	if err := json.Unmarshal([]byte(val), &env); err != nil || env.Version != entryVersion {
		return nil, false, nil
	}
	return env.Strokes, true, nil
}

// PutStrokes replaces the room's cached strokes wholesale.
func (c *RoomCache) PutStrokes(ctx context.Context, roomID int64, strokes []model.Stroke) error {
	data, err := json.Marshal(strokesEnvelope{Version: entryVersion, Strokes: strokes})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, strokesKey(roomID), data, 0).Err()
}

// InvalidateRoom deletes the room's cached strokes.
func (c *RoomCache) InvalidateRoom(ctx context.Context, roomID int64) error {
	return c.client.Del(ctx, strokesKey(roomID)).Err()
}

// GetRoomList returns the cached cross-room listing.
func (c *RoomCache) GetRoomList(ctx context.Context) ([]model.Room, bool, error) {
	val, err := c.client.Get(ctx, roomListKey).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var env roomListEnvelope
	if err := json.Unmarshal([]byte(val), &env); err != nil || env.Version != entryVersion {
		return nil, false, nil
	}
	return env.Rooms, true, nil
}

// PutRoomList replaces the cached cross-room listing.
func (c *RoomCache) PutRoomList(ctx context.Context, rooms []model.Room) error {
	data, err := json.Marshal(roomListEnvelope{Version: entryVersion, Rooms: rooms})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, roomListKey, data, 0).Err()
}

// InvalidateRoomList deletes the cached cross-room listing.
func (c *RoomCache) InvalidateRoomList(ctx context.Context) error {
	return c.client.Del(ctx, roomListKey).Err()
}

// Ping checks the Redis connection.
func (c *RoomCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RoomCache) Close() error {
	return c.client.Close()
}
