package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is a generic sentinel for permission denials.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNoPathFound is returned when no path connects two entities within the depth limit.
	ErrNoPathFound = errors.New("no path found")
)
