package handler

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/arosh/isucon6-final/internal/auth"
)

// Error messages shared across handlers.
const (
	msgTokenError   = "Token error. Please reload the page."
	msgBadRequest   = "Invalid request."
	msgRoomNotFound = "This room does not exist."
	msgNotOwner     = "You cannot draw the first stroke in someone else's room."
	msgInternal     = "An error occurred."
)

// TokenHandler issues drawing credentials.
type TokenHandler struct {
	tokens *auth.TokenManager
}

// NewTokenHandler builds a TokenHandler.
func NewTokenHandler(tokens *auth.TokenManager) *TokenHandler {
	return &TokenHandler{tokens: tokens}
}

// Issue creates a new credential and returns its token string.
func (h *TokenHandler) Issue(c *fiber.Ctx) error {
	token, err := h.tokens.Issue(c.Context())
	if err != nil {
		log.Printf("[Token] Issue failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msgInternal})
	}
	return c.JSON(fiber.Map{"token": token})
}

// credentialID validates the x-csrf-token header and returns the
// credential id, or 0 with false when the credential is missing, invalid
// or expired.
func credentialID(c *fiber.Ctx, tokens *auth.TokenManager) (int64, bool) {
	tokenID, err := tokens.Validate(c.Get("x-csrf-token"))
	if err != nil {
		return 0, false
	}
	return tokenID, true
}
