package service

import "errors"

// Validation errors are rejected synchronously, before any subsystem is
// touched, and are never retried.
var (
	ErrInvalidClientID = errors.New("clientId is required")
	ErrInvalidAction   = errors.New("invalid action")
	ErrInvalidState    = errors.New("invalid page state")
)

// ErrBroadcastUnsupported reports that the execution environment cannot
// hold cross-client in-process connections, so fan-out is impossible.
// This is a documented capability gap, not an empty room: callers can
// tell "nobody was listening" (count 0, nil error) apart from
// "broadcast cannot work here".
var ErrBroadcastUnsupported = errors.New("broadcast requires persistent connections")
