// Package render invalidates derived static render artifacts. The
// rendering itself happens elsewhere; this side of the contract only has
// to remove a room's pre-rendered image once its strokes change.
package render

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
)

// Invalidator deletes stale room images.
type Invalidator struct {
	imageDir string
}

// NewInvalidator builds an Invalidator rooted at imageDir.
func NewInvalidator(imageDir string) *Invalidator {
	return &Invalidator{imageDir: imageDir}
}

// InvalidateRoom removes the room's rendered SVG if present. Best effort:
// a failure is logged, never surfaced, since the artifact is rebuilt on
// demand anyway.
func (i *Invalidator) InvalidateRoom(roomID int64) {
	path := filepath.Join(i.imageDir, strconv.FormatInt(roomID, 10)+".svg")
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		log.Printf("[Render] Failed to remove %s: %v", path, err)
	}
}
