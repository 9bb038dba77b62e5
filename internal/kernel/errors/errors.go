// Package errors defines the typed error taxonomy shared by the routing
// kernel: admission errors are surfaced synchronously to callers of Route,
// execution errors travel through metrics and hooks, and persistence errors
// are warning-grade and never fail an invocation.
package errors

import (
	sterrors "errors"
	"fmt"
)

// Admission errors. Returned synchronously for targeted delivery and
// aggregated into RouteOutcome drop counts for broadcast.
var (
	ErrUnknownTarget  = sterrors.New("callosum: unknown target particle")
	ErrQueueFull      = sterrors.New("callosum: particle queue is full")
	ErrEnqueueTimeout = sterrors.New("callosum: enqueue timed out waiting for queue space")
	ErrCircuitOpen    = sterrors.New("callosum: circuit breaker is open")
)

// Registry errors.
var (
	ErrDuplicateParticle  = sterrors.New("callosum: particle id already registered")
	ErrUnknownParticle    = sterrors.New("callosum: particle id is not registered")
	ErrParticleIDRequired = sterrors.New("callosum: particle id is required")
	ErrProcessFnRequired  = sterrors.New("callosum: process function is required")
)

// Execution and lifecycle errors.
var (
	ErrHandlerTimeout = sterrors.New("callosum: handler invocation timed out")
	ErrRouterClosed   = sterrors.New("callosum: router is closed")
)

// InvalidEnvelopeError reports a rejected envelope construction.
type InvalidEnvelopeError struct {
	Reason string
}

func (e *InvalidEnvelopeError) Error() string {
	return "callosum: invalid envelope: " + e.Reason
}

// HandlerError annotates a failed invocation with the particle and envelope
// that produced it. The executor converts escaped panics and handler errors
// into this type at its boundary.
type HandlerError struct {
	ParticleID string
	EnvelopeID string
	Err        error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("callosum: particle %q failed handling envelope %s: %v", e.ParticleID, e.EnvelopeID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// StatePersistError reports a failed state write after a successful
// invocation. Non-fatal: the invocation result is still delivered.
type StatePersistError struct {
	ParticleID string
	Err        error
}

func (e *StatePersistError) Error() string {
	return fmt.Sprintf("callosum: failed to persist state for particle %q: %v", e.ParticleID, e.Err)
}

func (e *StatePersistError) Unwrap() error { return e.Err }
