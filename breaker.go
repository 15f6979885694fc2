package beacon

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// permanentBreakerTimeout is large enough that a breaker tripped by a single
// backend failure never transitions back to half-open within any realistic
// process lifetime, modeling the spec's "latched disabled for the remainder
// of the page lifetime" semantics on top of a real circuit breaker.
const permanentBreakerTimeout = 365 * 24 * time.Hour

// latch wraps a gobreaker.CircuitBreaker configured to trip permanently on
// the first observed Backend failure. It implements the persistence queue's
// fail-closed latch: once any Backend call errors, every subsequent call
// through the latch short-circuits with ErrQueueDisabled without touching
// the backend again.
type latch struct {
	cb *gobreaker.CircuitBreaker[any]
}

func newLatch(name string) *latch {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 0,
		Interval:    0,
		Timeout:     permanentBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
	}

	return &latch{cb: gobreaker.NewCircuitBreaker[any](settings)}
}

// disabled reports whether the latch has already tripped.
func (l *latch) disabled() bool {
	return l.cb.State() == gobreaker.StateOpen
}

// do runs fn through the latch, translating a trip into ErrQueueDisabled.
func (l *latch) do(fn func() error) error {
	_, err := l.cb.Execute(func() (any, error) {
		return nil, fn()
	})

	return translateLatchErr(err)
}

// doValue runs fn through the latch and returns its typed result.
func doValue[T any](l *latch, fn func() (T, error)) (T, error) {
	var zero T

	v, err := l.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		return zero, translateLatchErr(err)
	}
	if v == nil {
		return zero, nil
	}

	return v.(T), nil
}

func translateLatchErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrQueueDisabled
	}

	return err
}
