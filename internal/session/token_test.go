package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "42",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	return signed
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	got, err := TokenExpiry(signedToken(t, exp))
	require.NoError(t, err)
	assert.True(t, got.Equal(exp))
}

func TestTokenExpiry_NoExpClaim(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "42"})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = TokenExpiry(signed)
	assert.Error(t, err)
}

func TestTokenValid(t *testing.T) {
	now := time.Now()

	assert.True(t, TokenValid(signedToken(t, now.Add(time.Minute)), now))
	assert.False(t, TokenValid(signedToken(t, now.Add(-time.Minute)), now))
	// exp strictly greater than now is required
	boundary := now.Truncate(time.Second)
	assert.False(t, TokenValid(signedToken(t, boundary), boundary))
}

func TestTokenValid_MalformedNeverPanics(t *testing.T) {
	now := time.Now()

	for _, tokenString := range []string{
		"",
		"not-a-token",
		"a.b",
		"a.b.c",
		"header.!!!.signature",
	} {
		assert.False(t, TokenValid(tokenString, now), "token %q", tokenString)
	}
}
