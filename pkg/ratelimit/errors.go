package ratelimit

import "errors"

var (
	// ErrStoreRequired indicates the limiter was constructed without a store.
	ErrStoreRequired = errors.New("ratelimit: store is required")

	// ErrIdentifierRequired indicates an empty identifier was passed.
	ErrIdentifierRequired = errors.New("ratelimit: identifier is required")

	// ErrUnknownClass indicates no rule is registered for the operation class.
	ErrUnknownClass = errors.New("ratelimit: unknown operation class")

	// ErrInvalidRule indicates a rule with a non-positive window or budget.
	ErrInvalidRule = errors.New("ratelimit: invalid rule")
)
