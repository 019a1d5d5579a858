package service

import (
	"errors"
)

var (
	// ErrInvalidRoom means the room payload is missing its name or has a
	// non-positive canvas size.
	ErrInvalidRoom = errors.New("invalid room payload")
	// ErrInvalidStroke means the stroke payload is missing its width or
	// has no points.
	ErrInvalidStroke = errors.New("invalid stroke payload")
)
