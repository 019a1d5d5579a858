// Package auth issues and validates the drawing credentials. Each
// credential is backed by a token row (the row id is the credential id
// used for room ownership and watcher tracking) and handed to clients as
// a signed JWT, so validation is a local signature and expiry check.
package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/arosh/isucon6-final/internal/model"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// TokenCreator persists a credential row and returns it with its id.
type TokenCreator interface {
	CreateToken(ctx context.Context) (*model.Token, error)
}

// Claims carries the credential id inside the signed token.
type Claims struct {
	TokenID int64 `json:"token_id"`
	jwt.RegisteredClaims
}

// TokenManager issues and validates credentials.
type TokenManager struct {
	creator   TokenCreator
	secretKey []byte
	validity  time.Duration
}

// NewTokenManager builds a TokenManager.
func NewTokenManager(creator TokenCreator, secretKey string, validity time.Duration) *TokenManager {
	return &TokenManager{
		creator:   creator,
		secretKey: []byte(secretKey),
		validity:  validity,
	}
}

// Issue creates a credential row and returns its signed token string.
func (m *TokenManager) Issue(ctx context.Context) (string, error) {
	row, err := m.creator.CreateToken(ctx)
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := &Claims{
		TokenID: row.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.validity)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "isuketch-api",
			Subject:   strconv.FormatInt(row.ID, 10),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// Validate checks the token string and returns the credential id.
func (m *TokenManager) Validate(tokenString string) (int64, error) {
	if tokenString == "" {
		return 0, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrExpiredToken
		}
		return 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenID <= 0 {
		return 0, ErrInvalidToken
	}

	return claims.TokenID, nil
}
