package scope

import "errors"

var (
	// ErrInvalidPattern is returned when a scope pattern does not compile.
	ErrInvalidPattern = errors.New("invalid scope pattern")

	// ErrScopeNotFound is returned when the scope file does not exist.
	ErrScopeNotFound = errors.New("scope file not found")
)
