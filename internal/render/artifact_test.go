package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvalidateRoomRemovesImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "42.svg")
	require.NoError(t, os.WriteFile(path, []byte("<svg/>"), 0o644))

	NewInvalidator(dir).InvalidateRoom(42)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestInvalidateRoomLeavesOtherImages(t *testing.T) {
	dir := t.TempDir()
	other := filepath.Join(dir, "7.svg")
	require.NoError(t, os.WriteFile(other, []byte("<svg/>"), 0o644))

	NewInvalidator(dir).InvalidateRoom(42)

	_, err := os.Stat(other)
	assert.NoError(t, err)
}

func TestInvalidateRoomMissingImage(t *testing.T) {
	// Nothing rendered yet for the room is the common case.
	NewInvalidator(t.TempDir()).InvalidateRoom(42)
}
