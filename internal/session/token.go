package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry reads the exp claim from an access token without verifying its
// signature. The client holds no signing key; expiry is the only claim it
// needs and the server re-validates every token anyway.
func TokenExpiry(tokenString string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return time.Time{}, err
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("token has no exp claim")
	}

	return exp.Time, nil
}

// TokenValid reports whether the token decodes and expires strictly after now.
// Any malformed token is treated as invalid, never as an error.
func TokenValid(tokenString string, now time.Time) bool {
	if tokenString == "" {
		return false
	}

	exp, err := TokenExpiry(tokenString)
	if err != nil {
		return false
	}

	return exp.After(now)
}
