package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	assert.True(t, CheckPasswordHash("correct horse battery staple", hash))
	assert.False(t, CheckPasswordHash("wrong password", hash))
	assert.False(t, CheckPasswordHash("correct horse battery staple", "not-a-bcrypt-hash"))
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken(42, "alex", "sekrit", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, "sekrit")
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "alex", claims.Username)

	_, err = ParseToken(token, "other-secret")
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	token, err := GenerateToken(42, "alex", "sekrit", -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, "sekrit")
	assert.Error(t, err)
}
