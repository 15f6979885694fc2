package beacon

import "errors"

var (
	// ErrURLRequired is returned when a beacon call or RetryEntry has no URL.
	ErrURLRequired = errors.New("beacon: url is required")
	// ErrNegativeAttemptCount is returned when RetryEntry.AttemptCount is negative.
	ErrNegativeAttemptCount = errors.New("beacon: attempt count must be non-negative")
	// ErrQueueDisabled is returned by Backend operations once the queue has latched disabled.
	ErrQueueDisabled = errors.New("beacon: persistence queue is disabled after a backend failure")
	// ErrNoEntries signals that a backend has no entries to shift.
	ErrNoEntries = errors.New("beacon: no entries available")
	// ErrNilTransport is returned when New is called without a Transport.
	ErrNilTransport = errors.New("beacon: transport is required")
	// ErrNilBackend is returned when New is called without a Backend.
	ErrNilBackend = errors.New("beacon: backend is required")
)
