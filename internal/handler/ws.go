package handler

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/arosh/isucon6-final/internal/auth"
	"github.com/arosh/isucon6-final/internal/model"
	"github.com/arosh/isucon6-final/internal/service"
	"github.com/arosh/isucon6-final/internal/stream"
)

// WSHandler mirrors the SSE stroke stream over a websocket: the same
// event sequence, JSON framed. Clients resume with the last_stroke_id
// query parameter instead of Last-Event-ID.
type WSHandler struct {
	rooms  *service.RoomService
	hub    *stream.Hub
	tokens *auth.TokenManager
	retry  time.Duration
}

// NewWSHandler builds a WSHandler.
func NewWSHandler(rooms *service.RoomService, hub *stream.Hub, tokens *auth.TokenManager, retry time.Duration) *WSHandler {
	return &WSHandler{rooms: rooms, hub: hub, tokens: tokens, retry: retry}
}

// streamEvent is one websocket frame. Type is "watcher_count", "stroke"
// or "bad_request"; ID carries the resume cursor on stroke frames.
type streamEvent struct {
	Type         string        `json:"type"`
	ID           int64         `json:"id,omitempty"`
	Retry        int64         `json:"retry,omitempty"`
	Stroke       *model.Stroke `json:"stroke,omitempty"`
	WatcherCount int           `json:"watcher_count,omitempty"`
	Message      string        `json:"message,omitempty"`
}

// Handle runs one websocket subscription.
func (h *WSHandler) Handle(conn *websocket.Conn) {
	defer conn.Close()
	ctx := context.Background()

	tokenID, err := h.tokens.Validate(conn.Query("csrf_token"))
	if err != nil {
		conn.WriteJSON(streamEvent{Type: "bad_request", Message: msgTokenError})
		return
	}

	roomID, err := strconv.ParseInt(conn.Params("id"), 10, 64)
	if err != nil {
		conn.WriteJSON(streamEvent{Type: "bad_request", Message: msgRoomNotFound})
		return
	}
	if _, err := h.rooms.Get(ctx, roomID); err != nil {
		conn.WriteJSON(streamEvent{Type: "bad_request", Message: msgRoomNotFound})
		return
	}

	var cursor int64
	if last := conn.Query("last_stroke_id"); last != "" {
		cursor, _ = strconv.ParseInt(last, 10, 64)
	}

	// Read pump: the client sends nothing meaningful; reads only detect
	// the close handshake.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sub := h.hub.Subscribe(roomID)
	defer func() { sub.Close() }()

	if err := h.rooms.Heartbeat(ctx, roomID, tokenID); err != nil {
		log.Printf("[WS] Heartbeat failed for room %d: %v", roomID, err)
	}
	count, err := h.rooms.WatcherCount(ctx, roomID)
	if err != nil {
		log.Printf("[WS] Watcher count failed for room %d: %v", roomID, err)
	}
	if conn.WriteJSON(streamEvent{Type: "watcher_count", WatcherCount: count, Retry: h.retry.Milliseconds()}) != nil {
		return
	}

	cursor, err = h.replayBacklog(ctx, conn, roomID, cursor)
	if err != nil {
		return
	}

	ticker := time.NewTicker(watcherRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case stroke, ok := <-sub.Strokes():
			if !ok {
				sub = h.hub.Subscribe(roomID)
				cursor, err = h.replayBacklog(ctx, conn, roomID, cursor)
				if err != nil {
					return
				}
				continue
			}
			if stroke.ID <= cursor {
				continue
			}
			if conn.WriteJSON(strokeEvent(stroke)) != nil {
				return
			}
			cursor = stroke.ID

		case <-ticker.C:
			if err := h.rooms.Heartbeat(ctx, roomID, tokenID); err != nil {
				log.Printf("[WS] Heartbeat failed for room %d: %v", roomID, err)
			}
			count, err := h.rooms.WatcherCount(ctx, roomID)
			if err != nil {
				log.Printf("[WS] Watcher count failed for room %d: %v", roomID, err)
				continue
			}
			if conn.WriteJSON(streamEvent{Type: "watcher_count", WatcherCount: count}) != nil {
				return
			}
		}
	}
}

func (h *WSHandler) replayBacklog(ctx context.Context, conn *websocket.Conn, roomID, cursor int64) (int64, error) {
	backlog, err := h.rooms.StrokesAfter(ctx, roomID, cursor)
	if err != nil {
		log.Printf("[WS] Backlog read failed for room %d: %v", roomID, err)
		return cursor, err
	}
	for _, stroke := range backlog {
		if err := conn.WriteJSON(strokeEvent(stroke)); err != nil {
			return cursor, err
		}
		cursor = stroke.ID
	}
	return cursor, nil
}

func strokeEvent(stroke model.Stroke) streamEvent {
	s := stroke
	return streamEvent{Type: "stroke", ID: s.ID, Stroke: &s}
}

// Upgrade gates the websocket route on an actual upgrade request.
func Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
