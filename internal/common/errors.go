// Package common defines shared constants and sentinel errors used across
// client and server layers of silosync. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Entity-kind errors.
	ErrUnknownKind = errors.New("unknown entity kind")
	ErrMissingID   = errors.New("record has no id")

	// Connectivity errors.
	ErrOffline = errors.New("offline")

	// Auth errors (invalid or malformed session token).
	ErrInvalidToken = errors.New("invalid token")
)
