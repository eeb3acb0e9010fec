package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a key does not exist or has been revoked.
	ErrNotFound = errors.New("key not found")

	// ErrConflict is returned when a key with the given ID or hash already exists.
	ErrConflict = errors.New("key already exists")
)
