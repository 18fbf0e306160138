package models

import "errors"

// Domain errors surfaced by the job store and queue. Handlers map these to
// HTTP status codes; workers use them to decide retry behavior.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNoJob indicates no pending job was available to claim.
	ErrNoJob = errors.New("no pending job")
	// ErrInvalidTransition indicates a job status change outside the declared
	// state machine. The store rejects it without mutating.
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrNotTerminal indicates delete/retry was requested on a job that is
	// still pending or processing.
	ErrNotTerminal = errors.New("job is not in a terminal state")
	// ErrAttemptsExhausted indicates a retry was requested but the attempt
	// budget is spent.
	ErrAttemptsExhausted = errors.New("max attempts reached")
	// ErrCancelled indicates the worker observed the cancellation flag.
	ErrCancelled = errors.New("job cancelled")
	// ErrValidation indicates bad input at the API boundary; never enqueued.
	ErrValidation = errors.New("validation failed")
)
