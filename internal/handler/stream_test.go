package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arosh/isucon6-final/internal/cache"
	"github.com/arosh/isucon6-final/internal/model"
	"github.com/arosh/isucon6-final/internal/presence"
	"github.com/arosh/isucon6-final/internal/render"
	"github.com/arosh/isucon6-final/internal/service"
	"github.com/arosh/isucon6-final/internal/store/storetest"
	"github.com/arosh/isucon6-final/internal/stream"
)

type streamEnv struct {
	handler *StreamHandler
	strokes *service.StrokeService
	hub     *stream.Hub
	store   *storetest.Fake
}

func newStreamEnv(t *testing.T) *streamEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	fake := storetest.NewFake()
	roomCache := cache.NewWithClient(client)
	tracker := presence.NewTracker(client, 3*time.Second)
	hub := stream.NewHub(16)
	rooms := service.NewRoomService(fake, roomCache, tracker)
	strokes := service.NewStrokeService(fake, roomCache, hub, render.NewInvalidator(t.TempDir()))

	return &streamEnv{
		handler: NewStreamHandler(rooms, hub, nil, 500*time.Millisecond),
		strokes: strokes,
		hub:     hub,
		store:   fake,
	}
}

// seedRoom creates an owned room with n strokes already committed.
func (e *streamEnv) seedRoom(t *testing.T, n int) (int64, int64, []model.Stroke) {
	t.Helper()
	ctx := context.Background()
	token, err := e.store.CreateToken(ctx)
	require.NoError(t, err)
	room, err := e.store.CreateRoom(ctx, "stream room", 1024, 768, token.ID)
	require.NoError(t, err)

	strokes := make([]model.Stroke, 0, n)
	for i := 0; i < n; i++ {
		stroke, err := e.strokes.Submit(ctx, room.ID, token.ID,
			model.Stroke{Width: 3, Alpha: 1.0},
			[]model.Point{{X: float64(i), Y: float64(i)}})
		require.NoError(t, err)
		strokes = append(strokes, *stroke)
	}
	return room.ID, token.ID, strokes
}

// frameWriter captures each flushed chunk and can be told to start
// failing, which is how a stream learns its client went away.
type frameWriter struct {
	mu     sync.Mutex
	frames chan string
	failed bool
}

func newFrameWriter() *frameWriter {
	return &frameWriter{frames: make(chan string, 16)}
}

func (fw *frameWriter) Write(p []byte) (int, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.failed {
		return 0, errors.New("client disconnected")
	}
	fw.frames <- string(p)
	return len(p), nil
}

func (fw *frameWriter) disconnect() {
	fw.mu.Lock()
	fw.failed = true
	fw.mu.Unlock()
}

func (fw *frameWriter) next(t *testing.T) string {
	t.Helper()
	select {
	case frame := <-fw.frames:
		return frame
	case <-time.After(5 * time.Second):
		t.Fatal("no stream frame arrived")
		return ""
	}
}

func TestWriteStrokeFraming(t *testing.T) {
	stroke := model.Stroke{
		ID: 7, RoomID: 3, Width: 4, Red: 255, Alpha: 1.0,
		Points: []model.Point{{ID: 1, StrokeID: 7, X: 1.5, Y: 2.5}},
	}
	data, err := json.Marshal(stroke)
	require.NoError(t, err)

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	writeStroke(w, stroke)
	require.NoError(t, w.Flush())

	assert.Equal(t, fmt.Sprintf("id:7\nevent:stroke\ndata:%s\n\n", data), buf.String())
}

func TestWriteWatcherCountFraming(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	writeWatcherCount(w, 5)
	require.NoError(t, w.Flush())

	assert.Equal(t, "event:watcher_count\ndata:5\n\n", buf.String())
}

func TestBadRequestEventFraming(t *testing.T) {
	assert.Equal(t, "event:bad_request\ndata:"+msgRoomNotFound+"\n\n",
		badRequestEvent(msgRoomNotFound))
}

func TestReplayBacklogFromCursor(t *testing.T) {
	env := newStreamEnv(t)
	roomID, _, strokes := env.seedRoom(t, 3)

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	cursor, err := env.handler.replayBacklog(context.Background(), w, roomID, strokes[0].ID)
	require.NoError(t, err)
	assert.Equal(t, strokes[2].ID, cursor)

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "event:stroke"))
	assert.NotContains(t, out, fmt.Sprintf("id:%d\n", strokes[0].ID))
	assert.NotContains(t, out, "watcher_count")

	second := fmt.Sprintf("id:%d\nevent:stroke\n", strokes[1].ID)
	third := fmt.Sprintf("id:%d\nevent:stroke\n", strokes[2].ID)
	require.Contains(t, out, second)
	require.Contains(t, out, third)
	assert.Less(t, strings.Index(out, second), strings.Index(out, third))
}

func TestRunResumesThenDeliversLive(t *testing.T) {
	env := newStreamEnv(t)
	roomID, tokenID, strokes := env.seedRoom(t, 3)

	fw := newFrameWriter()
	done := make(chan struct{})
	go func() {
		env.handler.run(bufio.NewWriter(fw), roomID, tokenID, strokes[0].ID)
		close(done)
	}()

	// Reconnect hint and watcher count ride on the first flush only.
	first := fw.next(t)
	assert.True(t, strings.HasPrefix(first, "retry:500\n\n"), "got %q", first)
	assert.Contains(t, first, "event:watcher_count\n")
	assert.Equal(t, 1, strings.Count(first, "retry:"))

	// The backlog resumes exclusively after the cursor.
	backlog := fw.next(t)
	assert.Equal(t, 2, strings.Count(backlog, "event:stroke"))
	assert.NotContains(t, backlog, fmt.Sprintf("id:%d\n", strokes[0].ID))
	assert.Contains(t, backlog, fmt.Sprintf("id:%d\n", strokes[1].ID))
	assert.Contains(t, backlog, fmt.Sprintf("id:%d\n", strokes[2].ID))

	// The subscription is live once the backlog frame flushed. A stroke
	// the client already has must not be delivered again, while a new
	// commit must be.
	env.hub.Publish(strokes[2])
	fresh, err := env.strokes.Submit(context.Background(), roomID, tokenID,
		model.Stroke{Width: 2}, []model.Point{{X: 9, Y: 9}})
	require.NoError(t, err)

	var live string
	for {
		frame := fw.next(t)
		if strings.Contains(frame, "event:stroke") {
			live = frame
			break
		}
		// Idle ticks re-emit the watcher count while we wait.
		assert.Contains(t, frame, "event:watcher_count")
	}
	assert.Equal(t, 1, strings.Count(live, "event:stroke"))
	assert.NotContains(t, live, fmt.Sprintf("id:%d\nevent:stroke", strokes[2].ID))
	assert.Contains(t, live, fmt.Sprintf("id:%d\nevent:stroke", fresh.ID))

	fw.disconnect()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream kept running after the client went away")
	}
}
