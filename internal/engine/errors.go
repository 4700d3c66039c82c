package engine

import "errors"

// Sentinel errors shared across the engine. Handlers map these onto HTTP
// status codes; everything else is a 500.
var (
	// ErrNotFound indicates an unknown group/policy/schedule/incident id
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates an operation invalid for the entity's current
	// state, e.g. resolving an already-resolved incident or rotating an
	// empty schedule
	ErrConflict = errors.New("conflict")

	// ErrValidation indicates a malformed rule, policy or request rejected
	// before persistence
	ErrValidation = errors.New("validation failed")
)
