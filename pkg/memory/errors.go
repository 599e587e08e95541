package memory

import "errors"

var (
	// ErrNotFound is returned when a forget/lookup matches nothing. It is a
	// normal negative result, not a storage failure.
	ErrNotFound = errors.New("memory: not found")

	// ErrInvalidInput is returned for empty queries, empty content, or
	// malformed preference keys, before any store access.
	ErrInvalidInput = errors.New("memory: invalid input")
)
