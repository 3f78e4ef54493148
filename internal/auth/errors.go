package auth

import "errors"

var (
	// ErrTokenInvalid is returned when a JWT fails signature, expiry or
	// required-field validation.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrBadAPIKey is returned when the presented operator API key does
	// not match the configured key.
	ErrBadAPIKey = errors.New("bad api key")
)
