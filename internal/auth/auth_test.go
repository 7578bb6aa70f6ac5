package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHash(t *testing.T) {
	h, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.True(t, CheckPassword(h, "hunter2"))
	assert.False(t, CheckPassword(h, "hunter3"))
}

func TestJWTRoundTrip(t *testing.T) {
	tok, err := SignJWT("ellis", "secret", time.Hour)
	require.NoError(t, err)

	sub, err := ParseJWT(tok, "secret")
	require.NoError(t, err)
	assert.Equal(t, "ellis", sub)

	_, err = ParseJWT(tok, "other")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTExpired(t *testing.T) {
	tok, err := SignJWT("ellis", "secret", -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(tok, "secret")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
