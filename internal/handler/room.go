package handler

import (
	"errors"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/arosh/isucon6-final/internal/auth"
	"github.com/arosh/isucon6-final/internal/service"
	"github.com/arosh/isucon6-final/internal/store"
)

// RoomHandler serves the room listing, room creation and the room
// snapshot read.
type RoomHandler struct {
	rooms  *service.RoomService
	tokens *auth.TokenManager
}

// NewRoomHandler builds a RoomHandler.
func NewRoomHandler(rooms *service.RoomService, tokens *auth.TokenManager) *RoomHandler {
	return &RoomHandler{rooms: rooms, tokens: tokens}
}

// List returns the top 100 rooms by most recent stroke.
func (h *RoomHandler) List(c *fiber.Ctx) error {
	rooms, err := h.rooms.List(c.Context())
	if err != nil {
		log.Printf("[Room] List failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msgInternal})
	}
	return c.JSON(fiber.Map{"rooms": rooms})
}

type createRoomRequest struct {
	Name         string `json:"name"`
	CanvasWidth  int    `json:"canvas_width"`
	CanvasHeight int    `json:"canvas_height"`
}

// Create makes a new room owned by the submitting credential.
func (h *RoomHandler) Create(c *fiber.Ctx) error {
	tokenID, ok := credentialID(c, h.tokens)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msgTokenError})
	}

	var req createRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msgBadRequest})
	}

	room, err := h.rooms.Create(c.Context(), req.Name, req.CanvasWidth, req.CanvasHeight, tokenID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRoom) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msgBadRequest})
		}
		log.Printf("[Room] Create failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msgInternal})
	}
	return c.JSON(fiber.Map{"room": room})
}

// Get returns a room hydrated with its strokes and live watcher count.
func (h *RoomHandler) Get(c *fiber.Ctx) error {
	roomID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": msgRoomNotFound})
	}

	room, err := h.rooms.Snapshot(c.Context(), roomID)
	if err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": msgRoomNotFound})
		}
		log.Printf("[Room] Snapshot failed for room %d: %v", roomID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msgInternal})
	}
	return c.JSON(fiber.Map{"room": room})
}
