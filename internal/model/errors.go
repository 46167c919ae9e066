package model

import "errors"

var (
	// Session related errors
	ErrSignInRequired = errors.New("sign-in required")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
