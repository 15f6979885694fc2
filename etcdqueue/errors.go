package etcdqueue

import "errors"

var (
	// ErrClientRequired is returned when NewStore is called with a nil client.
	ErrClientRequired = errors.New("etcdqueue: client is required")
	// ErrPrefixRequired is returned when the resolved key prefix is empty.
	ErrPrefixRequired = errors.New("etcdqueue: prefix is required")
)
