package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrWorkerNotFound is returned when a worker ID has no registration.
	ErrWorkerNotFound = errors.New("worker not found")
	// ErrFragmentNotFound is returned when a fragment ID has no row.
	ErrFragmentNotFound = errors.New("fragment not found")
	// ErrChainNotFound is returned when a chain ID has no row.
	ErrChainNotFound = errors.New("chain not found")
)
