package handler

import (
	"errors"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/arosh/isucon6-final/internal/auth"
	"github.com/arosh/isucon6-final/internal/model"
	"github.com/arosh/isucon6-final/internal/service"
	"github.com/arosh/isucon6-final/internal/store"
)

// StrokeHandler accepts new stroke submissions.
type StrokeHandler struct {
	strokes *service.StrokeService
	tokens  *auth.TokenManager
}

// NewStrokeHandler builds a StrokeHandler.
func NewStrokeHandler(strokes *service.StrokeService, tokens *auth.TokenManager) *StrokeHandler {
	return &StrokeHandler{strokes: strokes, tokens: tokens}
}

type pointRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type strokeRequest struct {
	Width  int            `json:"width"`
	Red    int            `json:"red"`
	Green  int            `json:"green"`
	Blue   int            `json:"blue"`
	Alpha  float64        `json:"alpha"`
	Points []pointRequest `json:"points"`
}

// Submit appends a stroke to the room and returns it hydrated with its
// points.
func (h *StrokeHandler) Submit(c *fiber.Ctx) error {
	tokenID, ok := credentialID(c, h.tokens)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msgTokenError})
	}

	roomID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": msgRoomNotFound})
	}

	var req strokeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msgBadRequest})
	}

	stroke := model.Stroke{
		Width: req.Width,
		Red:   req.Red,
		Green: req.Green,
		Blue:  req.Blue,
		Alpha: req.Alpha,
	}
	points := make([]model.Point, 0, len(req.Points))
	for _, p := range req.Points {
		points = append(points, model.Point{X: p.X, Y: p.Y})
	}

	created, err := h.strokes.Submit(c.Context(), roomID, tokenID, stroke, points)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrRoomNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": msgRoomNotFound})
		case errors.Is(err, service.ErrInvalidStroke):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msgBadRequest})
		case errors.Is(err, store.ErrNotOwner):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msgNotOwner})
		}
		log.Printf("[Stroke] Submit failed for room %d: %v", roomID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msgInternal})
	}
	return c.JSON(fiber.Map{"stroke": created})
}
