package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/arosh/isucon6-final/internal/auth"
	"github.com/arosh/isucon6-final/internal/model"
	"github.com/arosh/isucon6-final/internal/service"
	"github.com/arosh/isucon6-final/internal/stream"
)

// watcherRefreshInterval paces the idle loop: each tick re-registers the
// subscriber's heartbeat (well inside the presence window) and re-emits
// the watcher count, and the flush doubles as disconnect detection.
const watcherRefreshInterval = time.Second

// StreamHandler serves the resumable per-room stroke stream over
// server-sent events. The client resumes by sending the id of the last
// stroke it processed as Last-Event-ID; the backlog it missed is
// replayed in ascending id order, then live strokes follow in the same
// framing with the same cursor semantics.
type StreamHandler struct {
	rooms  *service.RoomService
	hub    *stream.Hub
	tokens *auth.TokenManager
	retry  time.Duration
}

// NewStreamHandler builds a StreamHandler.
func NewStreamHandler(rooms *service.RoomService, hub *stream.Hub, tokens *auth.TokenManager, retry time.Duration) *StreamHandler {
	return &StreamHandler{rooms: rooms, hub: hub, tokens: tokens, retry: retry}
}

// Stream handles GET /api/stream/rooms/:id.
func (h *StreamHandler) Stream(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set("X-Accel-Buffering", "no")

	// Credential and room failures are terminal: a single framed event,
	// then the stream ends with no retry hint.
	tokenID, err := h.tokens.Validate(c.Query("csrf_token"))
	if err != nil {
		return c.SendString(badRequestEvent(msgTokenError))
	}

	roomID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.SendString(badRequestEvent(msgRoomNotFound))
	}
	if _, err := h.rooms.Get(c.Context(), roomID); err != nil {
		return c.SendString(badRequestEvent(msgRoomNotFound))
	}

	var cursor int64
	if lastEventID := c.Get("Last-Event-ID"); lastEventID != "" {
		cursor, _ = strconv.ParseInt(lastEventID, 10, 64)
	}

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		h.run(w, roomID, tokenID, cursor)
	}))
	return nil
}

// run drives one subscription: initial presence snapshot, backlog
// replay, then live delivery. It returns when the client goes away
// (detected by a failed flush) or an upstream read fails.
func (h *StreamHandler) run(w *bufio.Writer, roomID, tokenID, cursor int64) {
	ctx := context.Background()

	// Subscribe before reading the backlog so no commit can fall between
	// the snapshot and live delivery. The cursor guard below drops the
	// overlap.
	sub := h.hub.Subscribe(roomID)
	defer func() { sub.Close() }()

	if err := h.rooms.Heartbeat(ctx, roomID, tokenID); err != nil {
		log.Printf("[Stream] Heartbeat failed for room %d: %v", roomID, err)
	}
	count, err := h.rooms.WatcherCount(ctx, roomID)
	if err != nil {
		log.Printf("[Stream] Watcher count failed for room %d: %v", roomID, err)
	}

	// The reconnect hint rides on the very first event only.
	fmt.Fprintf(w, "retry:%d\n\n", h.retry.Milliseconds())
	writeWatcherCount(w, count)
	if w.Flush() != nil {
		return
	}

	cursor, err = h.replayBacklog(ctx, w, roomID, cursor)
	if err != nil {
		return
	}

	ticker := time.NewTicker(watcherRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case stroke, ok := <-sub.Strokes():
			if !ok {
				// Evicted as a slow consumer: catch up from the store and
				// resubscribe.
				sub = h.hub.Subscribe(roomID)
				cursor, err = h.replayBacklog(ctx, w, roomID, cursor)
				if err != nil {
					return
				}
				continue
			}
			if stroke.ID <= cursor {
				continue
			}
			writeStroke(w, stroke)
			cursor = stroke.ID
			if w.Flush() != nil {
				return
			}

		case <-ticker.C:
			if err := h.rooms.Heartbeat(ctx, roomID, tokenID); err != nil {
				log.Printf("[Stream] Heartbeat failed for room %d: %v", roomID, err)
			}
			count, err := h.rooms.WatcherCount(ctx, roomID)
			if err != nil {
				log.Printf("[Stream] Watcher count failed for room %d: %v", roomID, err)
				continue
			}
			writeWatcherCount(w, count)
			if w.Flush() != nil {
				return
			}
		}
	}
}

// replayBacklog emits every stroke with id > cursor in ascending order
// and returns the advanced cursor.
func (h *StreamHandler) replayBacklog(ctx context.Context, w *bufio.Writer, roomID, cursor int64) (int64, error) {
	backlog, err := h.rooms.StrokesAfter(ctx, roomID, cursor)
	if err != nil {
		log.Printf("[Stream] Backlog read failed for room %d: %v", roomID, err)
		return cursor, err
	}
	for _, stroke := range backlog {
		writeStroke(w, stroke)
		cursor = stroke.ID
	}
	return cursor, w.Flush()
}

// writeStroke frames one stroke event. The event id is the stroke id,
// usable verbatim as the resume cursor.
func writeStroke(w *bufio.Writer, stroke model.Stroke) {
	data, err := json.Marshal(stroke)
	if err != nil {
		log.Printf("[Stream] Marshal failed for stroke %d: %v", stroke.ID, err)
		return
	}
	fmt.Fprintf(w, "id:%d\nevent:stroke\ndata:%s\n\n", stroke.ID, data)
}

func writeWatcherCount(w *bufio.Writer, count int) {
	fmt.Fprintf(w, "event:watcher_count\ndata:%d\n\n", count)
}

func badRequestEvent(message string) string {
	return "event:bad_request\ndata:" + message + "\n\n"
}
