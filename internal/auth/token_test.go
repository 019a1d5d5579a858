package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arosh/isucon6-final/internal/model"
)

type fakeCreator struct {
	next int64
}

func (f *fakeCreator) CreateToken(ctx context.Context) (*model.Token, error) {
	f.next++
	return &model.Token{ID: f.next, CreatedAt: time.Now()}, nil
}

func TestIssueValidateRoundTrip(t *testing.T) {
	m := NewTokenManager(&fakeCreator{}, "test-secret", 24*time.Hour)

	token, err := m.Issue(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, token)

	tokenID, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), tokenID)
}

func TestIssuedCredentialIDsAreDistinct(t *testing.T) {
	m := NewTokenManager(&fakeCreator{}, "test-secret", 24*time.Hour)
	ctx := context.Background()

	first, err := m.Issue(ctx)
	require.NoError(t, err)
	second, err := m.Issue(ctx)
	require.NoError(t, err)

	id1, err := m.Validate(first)
	require.NoError(t, err)
	id2, err := m.Validate(second)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestValidateRejectsGarbage(t *testing.T) {
	m := NewTokenManager(&fakeCreator{}, "test-secret", 24*time.Hour)

	_, err := m.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Validate("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsWrongKey(t *testing.T) {
	issuer := NewTokenManager(&fakeCreator{}, "secret-a", 24*time.Hour)
	verifier := NewTokenManager(&fakeCreator{}, "secret-b", 24*time.Hour)

	token, err := issuer.Issue(context.Background())
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsExpired(t *testing.T) {
	m := NewTokenManager(&fakeCreator{}, "test-secret", -time.Hour)

	token, err := m.Issue(context.Background())
	require.NoError(t, err)

	_, err = m.Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}
