package chat

import "errors"

// Domain error taxonomy. Services wrap these with context via
// fmt.Errorf("%w: ...") and callers match with errors.Is. Transport
// failures never appear here: the dispatcher swallows them.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation failed")
	ErrConflict        = errors.New("conflict")
)
