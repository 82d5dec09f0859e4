package service

import "errors"

// Errors returned by the service. The HTTP layer maps them to status codes.
var (
	ErrNotStarted    = errors.New("service not started")
	ErrUnknownLevel  = errors.New("unknown level")
	ErrConcurrentRun = errors.New("a run is already in progress for this level")
	ErrBackpressure  = errors.New("run queue is full")
	ErrRunFailed     = errors.New("assignment run failed")
)
