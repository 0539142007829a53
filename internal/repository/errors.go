package repository

import "errors"

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrConflict indicates a guarded update did not match the stored state.
var ErrConflict = errors.New("repository: state conflict")

// ErrInvalidArgument indicates malformed input rejected by the store.
var ErrInvalidArgument = errors.New("repository: invalid argument")
