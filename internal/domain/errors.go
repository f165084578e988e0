package domain

import "errors"

var (
	// ErrTokenNotFound indicates a token record is absent from the content cache
	ErrTokenNotFound = errors.New("token not found")
	// ErrInvalidContent indicates on-chain content failed validation and was not cached
	ErrInvalidContent = errors.New("invalid token content")
)
