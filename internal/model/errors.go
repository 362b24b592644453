package model

import "errors"

// Sentinel errors shared across store implementations and services. Handlers
// map these onto HTTP status codes in one place.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates the input failed validation.
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates the operation conflicts with existing state.
	ErrConflict = errors.New("conflict")

	// ErrDuplicatePayload indicates a byte-identical payload was already
	// accepted from the same user inside the duplicate window.
	ErrDuplicatePayload = errors.New("duplicate payload")
)
