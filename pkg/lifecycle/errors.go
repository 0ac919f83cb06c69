package lifecycle

import "errors"

// Domain-level error values returned by the lifecycle service.
var (
	ErrAlreadyPendingRequest  = errors.New("reactivation request already pending")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInvalidNotes           = errors.New("invalid notes")
	ErrInvalidRequestStatus   = errors.New("invalid request status")
	ErrInvalidRequestID       = errors.New("invalid request id")
)
