package services

import (
	"errors"
	"fmt"
)

// ErrControlInterrupt signals that a run was asked to stop, either through
// the control state or through context cancellation. It is not a failure:
// the run terminates early with partial totals and success = true.
var ErrControlInterrupt = errors.New("control interrupt")

// ErrRunInFlight is returned when a run is triggered for a collector that
// already has one in flight.
var ErrRunInFlight = errors.New("collector run already in flight")

// ValidationError marks a candidate missing a required identity field.
// The record is dropped and counted as an error; the run continues.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid candidate: " + e.Reason
}

// TransientSourceError wraps a network, timeout or rate-limit failure
// reaching a third-party source. The current target is skipped.
type TransientSourceError struct {
	Target string
	Err    error
}

func (e *TransientSourceError) Error() string {
	return fmt.Sprintf("source fetch failed for target %q: %v", e.Target, e.Err)
}

func (e *TransientSourceError) Unwrap() error { return e.Err }

// PersistenceError wraps a storage write failure on a single upsert.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// SetupFailure is the only run-fatal error class: the run could not acquire
// what it needs to operate at all.
type SetupFailure struct {
	Err error
}

func (e *SetupFailure) Error() string {
	return fmt.Sprintf("run setup failed: %v", e.Err)
}

func (e *SetupFailure) Unwrap() error { return e.Err }
