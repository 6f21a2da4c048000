package store

import "errors"

var (
	// ErrNotFound is returned when a binding cannot be found.
	ErrNotFound = errors.New("account not found")

	// ErrConflict is returned when the Minecraft UUID is already bound.
	ErrConflict = errors.New("minecraft account already registered")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")
)
