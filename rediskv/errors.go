package rediskv

import "errors"

var (
	// ErrClientRequired is returned when NewStore is called with a nil client.
	ErrClientRequired = errors.New("rediskv: client is required")
	// ErrLockFailed is returned when the distributed mutex could not be acquired.
	ErrLockFailed = errors.New("rediskv: failed to acquire distributed lock")
)
