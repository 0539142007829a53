package deploy

import "errors"

var (
	// ErrInvalidTransition is returned when a deployment is not in a state
	// that permits the requested change.
	ErrInvalidTransition = errors.New("invalid deployment state transition")
	// ErrAlreadyTerminal is returned when cancelling a finished deployment.
	ErrAlreadyTerminal = errors.New("deployment already finished")
	// ErrRetryNotAllowed is returned when retrying a deployment that is still
	// active or that succeeded.
	ErrRetryNotAllowed = errors.New("only failed or cancelled deployments can be retried")
	// ErrInvalidInput is returned for deployments without branch or commit.
	ErrInvalidInput = errors.New("invalid deployment input")
)
